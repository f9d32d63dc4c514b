package models

import (
	"time"

	"github.com/google/uuid"
)

// SensorType identifies which instrument of the multi-sensor device produced
// a reading.
type SensorType string

const (
	SensorNone        SensorType = "none"
	SensorThermometer SensorType = "thermometer"
	SensorOximeter    SensorType = "oximeter"
	SensorBPMonitor   SensorType = "bp_monitor"
	SensorOtoscope    SensorType = "otoscope"
	SensorStethoscope SensorType = "stethoscope"
)

// Valid reports whether the sensor type names a real instrument.
func (s SensorType) Valid() bool {
	switch s {
	case SensorThermometer, SensorOximeter, SensorBPMonitor, SensorOtoscope, SensorStethoscope:
		return true
	}
	return false
}

// Reading is one measurement captured from the device. Value fields are
// pointers because each sensor fills only its own subset.
type Reading struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	Sensor      SensorType `json:"sensor"`
	Temperature *float64   `json:"temperature,omitempty"` // Celsius
	HeartRate   *int       `json:"heart_rate,omitempty"`  // BPM
	SpO2        *int       `json:"spo2,omitempty"`        // percent
	SystolicBP  *int       `json:"systolic_bp,omitempty"` // mmHg
	DiastolicBP *int       `json:"diastolic_bp,omitempty"`
	MediaKey    string     `json:"media_key,omitempty"` // S3 key for otoscope/stethoscope captures
	Notes       string     `json:"notes,omitempty"`
	TakenAt     time.Time  `json:"taken_at"`
	Synced      bool       `json:"synced"`
	CreatedAt   time.Time  `json:"created_at"`
}

// VitalsSample is a live reading from the telemetry stream, before it is
// persisted. Zero value means "no data".
type VitalsSample struct {
	Sensor      SensorType `json:"sensor"`
	Temperature *float64   `json:"temperature,omitempty"`
	HeartRate   *int       `json:"heart_rate,omitempty"`
	SpO2        *int       `json:"spo2,omitempty"`
	SystolicBP  *int       `json:"systolic_bp,omitempty"`
	DiastolicBP *int       `json:"diastolic_bp,omitempty"`
	Waveform    []float64  `json:"waveform,omitempty"` // pleth/auscultation trace segment
	TakenAt     time.Time  `json:"taken_at"`
}

// IsZero reports whether the sample carries no data.
func (v VitalsSample) IsZero() bool {
	return v.Sensor == "" || v.Sensor == SensorNone
}

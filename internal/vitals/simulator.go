package vitals

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vitalink/telecare/internal/models"
)

const defaultSampleInterval = 500 * time.Millisecond

// Simulator stands in for the multi-sensor examination device. While a
// sensor is active it emits one plausible sample per interval on Readings;
// with no sensor selected the stream is silent.
type Simulator struct {
	interval time.Duration
	log      *zap.Logger
	rng      *rand.Rand

	mu     sync.Mutex
	sensor models.SensorType
	stopCh chan struct{}

	out chan models.VitalsSample
}

// NewSimulator creates a stopped simulator. interval <= 0 selects the device
// default of 500ms.
func NewSimulator(interval time.Duration, log *zap.Logger) *Simulator {
	if interval <= 0 {
		interval = defaultSampleInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Simulator{
		interval: interval,
		log:      log,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		out:      make(chan models.VitalsSample, 16),
	}
}

// Readings streams samples across sensor switches.
func (s *Simulator) Readings() <-chan models.VitalsSample { return s.out }

// Active returns the sensor currently emitting, SensorNone when stopped.
func (s *Simulator) Active() models.SensorType {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh == nil {
		return models.SensorNone
	}
	return s.sensor
}

// Start begins emitting for sensor, replacing any running sensor. Unknown
// sensors are rejected.
func (s *Simulator) Start(sensor models.SensorType) {
	if !sensor.Valid() {
		s.log.Warn("ignoring unknown sensor", zap.String("sensor", string(sensor)))
		return
	}
	s.mu.Lock()
	if s.stopCh != nil {
		close(s.stopCh)
	}
	s.sensor = sensor
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	s.log.Info("sensor started", zap.String("sensor", string(sensor)))
	go s.emitLoop(sensor, stopCh)
}

// Stop silences the stream.
func (s *Simulator) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	s.stopCh = nil
	s.sensor = models.SensorNone
}

func (s *Simulator) emitLoop(sensor models.SensorType, stopCh chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			sample := s.sample(sensor)
			select {
			case s.out <- sample:
			default:
				// consumer lagging; device samples are superseded anyway
			}
		}
	}
}

func (s *Simulator) sample(sensor models.SensorType) models.VitalsSample {
	s.mu.Lock()
	defer s.mu.Unlock()

	sample := models.VitalsSample{Sensor: sensor, TakenAt: time.Now().UTC()}
	switch sensor {
	case models.SensorThermometer:
		t := round1(36.5 + s.rng.Float64())
		sample.Temperature = &t
	case models.SensorOximeter:
		spo2 := 96 + s.rng.Intn(4)
		hr := 65 + s.rng.Intn(20)
		sample.SpO2 = &spo2
		sample.HeartRate = &hr
		sample.Waveform = s.trace(24)
	case models.SensorBPMonitor:
		sys := 110 + s.rng.Intn(20)
		dia := 70 + s.rng.Intn(20)
		hr := 60 + s.rng.Intn(20)
		sample.SystolicBP = &sys
		sample.DiastolicBP = &dia
		sample.HeartRate = &hr
	case models.SensorStethoscope:
		sample.Waveform = s.trace(48)
	case models.SensorOtoscope:
		// image-only instrument; the sample marks liveness, capture goes
		// through the reading store
	}
	return sample
}

// trace produces a short synthetic waveform segment in [-1, 1].
func (s *Simulator) trace(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = round1(s.rng.Float64()*2 - 1)
	}
	return w
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

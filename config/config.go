package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RTC       RTCConfig
	Chat      ChatConfig
	Cloud     CloudConfig
	AWS       AWSConfig
	Telemetry TelemetryConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/telecare?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// RTCConfig holds the video call provider settings. A session is considered
// unconfigured when AppID is zero or ServerSecret is empty, unless a static
// dev token is supplied.
type RTCConfig struct {
	AppID        uint32
	ServerSecret string
	StaticToken  string // dev override; skips minting when set
	ChannelID    string // shared consultation room
	SignalingURL string // websocket signaling gateway
	ICEUrls      []string
}

// Configured reports whether call credentials are usable.
func (c RTCConfig) Configured() bool {
	if c.StaticToken != "" && c.ChannelID != "" {
		return true
	}
	return c.AppID != 0 && c.ServerSecret != "" && c.ChannelID != ""
}

// ChatConfig holds the text channel gateway and per-role identities.
type ChatConfig struct {
	GatewayURL      string
	PatientUsername string
	DoctorUsername  string
}

// CloudConfig holds the remote health-record API settings.
type CloudConfig struct {
	BaseURL string
	APIKey  string
}

// AWSConfig holds AWS credentials and the exam media bucket.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	MediaBucket          string
	PresignExpireMinutes int
}

// TelemetryConfig holds sensor simulator settings.
type TelemetryConfig struct {
	SampleIntervalMS int
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	readTimeout, _ := strconv.Atoi(getEnv("READ_TIMEOUT_SEC", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("WRITE_TIMEOUT_SEC", "30"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	jwtExpire, _ := strconv.Atoi(getEnv("JWT_EXPIRE_HOURS", "24"))
	rtcAppID, _ := strconv.ParseUint(getEnv("RTC_APP_ID", "0"), 10, 32)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        readTimeout,
			WriteTimeout:       writeTimeout,
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:3001"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", "postgres://localhost:5432/telecare?sslmode=disable"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "telecare"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: jwtExpire,
		},
		RTC: RTCConfig{
			AppID:        uint32(rtcAppID),
			ServerSecret: getEnv("RTC_SERVER_SECRET", ""),
			StaticToken:  getEnv("RTC_STATIC_TOKEN", ""),
			ChannelID:    getEnv("RTC_CHANNEL_ID", "consultation_room"),
			SignalingURL: getEnv("RTC_SIGNALING_URL", "ws://localhost:9090/signal"),
			ICEUrls:      splitTrim(getEnv("RTC_ICE_URLS", "stun:stun.l.google.com:19302"), ","),
		},
		Chat: ChatConfig{
			GatewayURL:      getEnv("CHAT_GATEWAY_URL", "ws://localhost:9091/chat"),
			PatientUsername: getEnv("CHAT_PATIENT_USERNAME", "patient1"),
			DoctorUsername:  getEnv("CHAT_DOCTOR_USERNAME", "doctor1"),
		},
		Cloud: CloudConfig{
			BaseURL: getEnv("CLOUD_API_BASE_URL", ""),
			APIKey:  getEnv("CLOUD_API_KEY", ""),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			MediaBucket:          getEnv("AWS_S3_MEDIA_BUCKET", "telecare-exam-media"),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Telemetry: TelemetryConfig{
			SampleIntervalMS: getEnvInt("TELEMETRY_SAMPLE_INTERVAL_MS", 500),
		},
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

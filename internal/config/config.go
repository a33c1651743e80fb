package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Database DatabaseConfig
	Scan     ScanConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type RedisConfig struct {
	Addr string
}

type KafkaConfig struct {
	Brokers []string
	Topics  TopicConfig
	Enabled bool
}

type TopicConfig struct {
	TicketEntry string
	TicketExit  string
}

type DatabaseConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

// ScanConfig holds the timing knobs of the admission pipeline. The
// defaults mirror the scanner apps in the field: sessions outlive a QR
// scan by 20 seconds, locks outlive a crashed confirm by 5.
type ScanConfig struct {
	SessionTTL      time.Duration
	LockTTL         time.Duration
	ReentryCooldown time.Duration
	OpTimeout       time.Duration
	QRSecret        string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8085"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", "localhost:6379"),
		},
		Database: DatabaseConfig{
			DSN:          getEnv("POSTGRES_DSN", ""),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers: []string{getEnv("KAFKA_ADDR", "localhost:9092")},
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Topics: TopicConfig{
				TicketEntry: getEnv("KAFKA_TOPIC_ENTRY", "admission.ticket.entry"),
				TicketExit:  getEnv("KAFKA_TOPIC_EXIT", "admission.ticket.exit"),
			},
		},
		Scan: ScanConfig{
			SessionTTL:      getEnvDuration("SCAN_SESSION_TTL_SECONDS", 20*time.Second),
			LockTTL:         getEnvDuration("TICKET_LOCK_TTL_SECONDS", 5*time.Second),
			ReentryCooldown: getEnvDuration("REENTRY_COOLDOWN_SECONDS", 60*time.Second),
			OpTimeout:       getEnvDuration("SCAN_OP_TIMEOUT_SECONDS", 2*time.Second),
			QRSecret:        getEnv("QR_SECRET_KEY", ""),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return time.Duration(parsed) * time.Second
		}
	}
	return defaultValue
}

package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Host string
	Port string

	StoreBackend         string
	StorePrefix          string
	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	ConnectivityInterval time.Duration

	MySQLDSN string

	JWTSecret    string
	StaffPIN     string
	StaffPINHash string

	AverageServiceTime time.Duration
	LearnedServiceTime bool
	NearTurnThreshold  int

	ClinicOpen  string
	ClinicClose string
	ClinicTZ    string

	OTelEndpoint string
	OTelInsecure bool
}

func LoadEnv() {
	err := godotenv.Load()
	if err != nil {
		log.Println(".env not found, using system environment")
	}
}

// Load reads the whole configuration from the environment.
func Load() Config {
	return Config{
		Host: GetEnv("APP_HOST", ""),
		Port: GetEnv("APP_PORT", "8080"),

		StoreBackend:         strings.ToLower(GetEnv("STORE_BACKEND", "redis")),
		StorePrefix:          GetEnv("STORE_PREFIX", "clinicq:"),
		RedisAddr:            GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:        GetEnv("REDIS_PASSWORD", ""),
		RedisDB:              GetInt("REDIS_DB", 0),
		ConnectivityInterval: GetDuration("CONNECTIVITY_INTERVAL_SECONDS", 5),

		MySQLDSN: GetEnv("MYSQL_DSN", ""),

		JWTSecret:    GetEnv("JWT_SECRET", ""),
		StaffPIN:     GetEnv("STAFF_PIN", "0000"),
		StaffPINHash: GetEnv("STAFF_PIN_HASH", ""),

		AverageServiceTime: time.Duration(GetInt("AVERAGE_SERVICE_MINUTES", 15)) * time.Minute,
		LearnedServiceTime: strings.EqualFold(GetEnv("SERVICE_TIME_MODE", "fixed"), "learned"),
		NearTurnThreshold:  GetInt("NEAR_TURN_THRESHOLD", 3),

		ClinicOpen:  GetEnv("CLINIC_OPEN", ""),
		ClinicClose: GetEnv("CLINIC_CLOSE", ""),
		ClinicTZ:    GetEnv("CLINIC_TZ", "Asia/Bangkok"),

		OTelEndpoint: GetEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTelInsecure: GetBool("OTEL_EXPORTER_OTLP_INSECURE", false),
	}
}

// Location resolves ClinicTZ, falling back to the local zone.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ClinicTZ)
	if err != nil {
		log.Printf("[config] unknown CLINIC_TZ %q, using local time", c.ClinicTZ)
		return time.Local
	}
	return loc
}

func (c Config) Addr() string {
	return c.Host + ":" + c.Port
}

func GetEnv(key string, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func GetInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func GetBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}

// GetDuration reads a whole number of seconds.
func GetDuration(key string, fallbackSeconds int) time.Duration {
	value := GetInt(key, fallbackSeconds)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          string
	LogLevel      string
	VerifyToken   string
	WhatsAppToken string
	PhoneNumberID string

	DBDriver   string // sqlite or postgres
	DBPath     string // sqlite file path
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	DBSSLMode  string

	ResponderURL string

	// FrequencyWindowHours is the default lookback for the frequency guard;
	// 0 disables it. BroadcastDelayMs spaces consecutive broadcast sends.
	FrequencyWindowHours int
	BroadcastDelayMs     int
	SendTimeoutSeconds   int
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("Warning: Error loading .env file")
	}

	return &Config{
		Port:          getEnv("PORT", "8080"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		VerifyToken:   getEnv("VERIFY_TOKEN", ""),
		WhatsAppToken: getEnv("WHATSAPP_TOKEN", ""),
		PhoneNumberID: getEnv("PHONE_NUMBER_ID", ""),

		DBDriver:   getEnv("DB_DRIVER", "sqlite"),
		DBPath:     getEnv("DB_PATH", "./whatsapp-crm.db"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "whatsapp_crm"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		ResponderURL: getEnv("RESPONDER_URL", ""),

		FrequencyWindowHours: getEnvAsInt("FREQUENCY_WINDOW_HOURS", 24),
		BroadcastDelayMs:     getEnvAsInt("BROADCAST_DELAY_MS", 1000),
		SendTimeoutSeconds:   getEnvAsInt("SEND_TIMEOUT_SECONDS", 20),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

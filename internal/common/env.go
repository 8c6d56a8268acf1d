package common

import (
	"os"
	"strconv"
	"time"
)

const (
	JWTExpire    = 24 * time.Hour
	JWTNewExpire = time.Hour
)

// Config holds the environment-variable configuration the server and
// executor read at boot.
type Config struct {
	AppEnv     string
	ListenAddr string
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	LogPath    string
	KeyPath    string
	CertPath   string
	JWTKey     string

	// First-boot operator account
	AdminUser     string
	AdminPassword string

	// Remote session channel
	ChannelKind string // "ssh" or "docker"
	SSHUser     string
	SSHKeyPath  string

	// Task executor
	CommandTimeout  time.Duration // upper bound on one remote command
	RecoveryTimeout time.Duration // running task with no executor older than this is reaped
}

var config Config

func GetConfig() Config {
	return config
}

func InitConf() {
	dbPort, _ := strconv.Atoi(getEnv("DB_PORT", "3306"))

	config = Config{
		AppEnv:          getEnv("APP_ENV", "development"),
		ListenAddr:      getEnv("LISTEN_ADDR", ":8080"),
		DBHost:          getEnv("DB_HOST", "localhost"),
		DBPort:          dbPort,
		DBUser:          getEnv("DB_USER", ""),
		DBPassword:      getEnv("DB_PASSWORD", ""),
		DBName:          getEnv("DB_NAME", "gantry"),
		LogPath:         getEnv("LOG_PATH", "./logs/gantry.log"),
		KeyPath:         getEnv("KEY_PATH", ""),
		CertPath:        getEnv("CERT_PATH", ""),
		JWTKey:          getEnv("JWT_KEY", "gantry-dev-key"),
		AdminUser:       getEnv("ADMIN_USER", "admin"),
		AdminPassword:   getEnv("ADMIN_PASSWORD", ""),
		ChannelKind:     getEnv("CHANNEL_KIND", "ssh"),
		SSHUser:         getEnv("SSH_USER", "dev"),
		SSHKeyPath:      getEnv("SSH_KEY_PATH", ""),
		CommandTimeout:  getDurationEnv("COMMAND_TIMEOUT", 10*time.Minute),
		RecoveryTimeout: getDurationEnv("RECOVERY_TIMEOUT", 5*time.Minute),
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

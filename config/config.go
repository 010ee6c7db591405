package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port            int
	DBPath          string
	ReadTimeout     int // seconds
	WriteTimeout    int // seconds
	FileReadTimeout int // seconds, deadline for the file payload line
	MetricsAddr     string
	LogLevel        string // debug, info, warn, error
}

func Load() *Config {
	cfg := &Config{
		Port:            7070,
		DBPath:          "relay.db",
		ReadTimeout:     120,
		WriteTimeout:    30,
		FileReadTimeout: 60,
		MetricsAddr:     ":9090",
		LogLevel:        "info",
	}

	if portStr := os.Getenv("RELAY_PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			cfg.Port = port
		}
	}

	if dbPath := os.Getenv("RELAY_DB_PATH"); dbPath != "" {
		cfg.DBPath = dbPath
	}

	if timeoutStr := os.Getenv("RELAY_READ_TIMEOUT"); timeoutStr != "" {
		if timeout, err := strconv.Atoi(timeoutStr); err == nil {
			cfg.ReadTimeout = timeout
		}
	}

	if timeoutStr := os.Getenv("RELAY_WRITE_TIMEOUT"); timeoutStr != "" {
		if timeout, err := strconv.Atoi(timeoutStr); err == nil {
			cfg.WriteTimeout = timeout
		}
	}

	if timeoutStr := os.Getenv("RELAY_FILE_READ_TIMEOUT"); timeoutStr != "" {
		if timeout, err := strconv.Atoi(timeoutStr); err == nil {
			cfg.FileReadTimeout = timeout
		}
	}

	if addr := os.Getenv("RELAY_METRICS_ADDR"); addr != "" {
		cfg.MetricsAddr = addr
	}

	if level := os.Getenv("RELAY_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	return cfg
}

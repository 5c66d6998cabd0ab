package models

import "time"

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig
	Registry RegistryConfig
	Worker   WorkerConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// RegistryConfig points at the currency and wallet registry files.
type RegistryConfig struct {
	CurrenciesFile string
	WalletsFile    string
}

// WorkerConfig holds the back-office worker settings.
type WorkerConfig struct {
	CollectionInterval time.Duration
	DispatchInterval   time.Duration
}

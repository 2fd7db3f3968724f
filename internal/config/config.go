package config

import (
	"time"

	yamlenv "github.com/ifuryst/go-yaml-env"

	"github.com/ifuryst/kiosksync/pkg/logger"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Logger    logger.Config   `yaml:"logger"`
	Drive     DriveConfig     `yaml:"drive"`
	Storage   StorageConfig   `yaml:"storage"`
	Redis     RedisConfig     `yaml:"redis"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Queue     QueueConfig     `yaml:"queue"`
}

type ServerConfig struct {
	Port     int    `yaml:"port"`
	Host     string `yaml:"host"`
	Mode     string `yaml:"mode"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type DatabaseConfig struct {
	Type     string `yaml:"type"` // postgres or memory
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	TimeZone string `yaml:"timezone"`
}

type DriveConfig struct {
	// Endpoint overrides the Drive API base URL, e.g. for a local emulator.
	Endpoint          string  `yaml:"endpoint"`
	TokenURL          string  `yaml:"token_url"`
	Timeout           string  `yaml:"timeout"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	// KiosksFolderName is the folder under the account root holding one folder per kiosk.
	KiosksFolderName string `yaml:"kiosks_folder_name"`
}

func (c *DriveConfig) RequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

type StorageConfig struct {
	Bucket          string `yaml:"bucket"`
	CredentialsFile string `yaml:"credentials_file"`
	Endpoint        string `yaml:"endpoint"`
	Timeout         string `yaml:"timeout"`
}

func (c *StorageConfig) ReadTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 2 * time.Minute
	}
	return d
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	LockTTL  string `yaml:"lock_ttl"`
}

func (c *RedisConfig) LockTTLDuration() time.Duration {
	d, err := time.ParseDuration(c.LockTTL)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

type SchedulerConfig struct {
	Enabled         bool   `yaml:"enabled"`
	ProcessInterval string `yaml:"process_interval"`
	SyncInterval    string `yaml:"sync_interval"`
}

type QueueConfig struct {
	BatchSize       int `yaml:"batch_size"`
	SyncBatchSize   int `yaml:"sync_batch_size"`
	SyncConcurrency int `yaml:"sync_concurrency"`
}

func LoadConfig(configPath string) (*Config, error) {
	cfg, err := yamlenv.LoadConfig[Config](configPath)
	if err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	return cfg, nil
}

// ApplyDefaults fills every unset field with its default value.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5334
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "debug"
	}
	if cfg.Database.Type == "" {
		cfg.Database.Type = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.TimeZone == "" {
		cfg.Database.TimeZone = "UTC"
	}
	if cfg.Drive.Timeout == "" {
		cfg.Drive.Timeout = "60s"
	}
	if cfg.Drive.RequestsPerSecond <= 0 {
		cfg.Drive.RequestsPerSecond = 8
	}
	if cfg.Drive.Burst <= 0 {
		cfg.Drive.Burst = 4
	}
	if cfg.Drive.KiosksFolderName == "" {
		cfg.Drive.KiosksFolderName = "Kiosks"
	}
	if cfg.Storage.Timeout == "" {
		cfg.Storage.Timeout = "2m"
	}
	if cfg.Redis.LockTTL == "" {
		cfg.Redis.LockTTL = "5m"
	}
	if cfg.Scheduler.ProcessInterval == "" {
		cfg.Scheduler.ProcessInterval = "5m"
	}
	if cfg.Scheduler.SyncInterval == "" {
		cfg.Scheduler.SyncInterval = "1h"
	}
	if cfg.Queue.BatchSize <= 0 {
		cfg.Queue.BatchSize = 100
	}
	if cfg.Queue.SyncBatchSize <= 0 {
		cfg.Queue.SyncBatchSize = 100
	}
	if cfg.Queue.SyncConcurrency <= 0 {
		cfg.Queue.SyncConcurrency = 4
	}
}

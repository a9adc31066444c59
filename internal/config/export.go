package config

import (
	"time"

	"github.com/spf13/viper"
)

// Export export coordinator config struct
type Export struct {
	PollInterval    time.Duration
	CleanupInterval time.Duration
	MaxAge          time.Duration
	DownloadDir     string
}

func getExportConfig(v *viper.Viper) *Export {
	cfg := &Export{
		PollInterval:    v.GetDuration("export.poll_interval"),
		CleanupInterval: v.GetDuration("export.cleanup_interval"),
		MaxAge:          v.GetDuration("export.max_age"),
		DownloadDir:     v.GetString("export.download_dir"),
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 10 * time.Minute
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = time.Hour
	}
	return cfg
}

package config

import (
	"time"

	"github.com/spf13/viper"
)

// ERP remote reporting API config struct
type ERP struct {
	Endpoint string
	Token    string
	Timeout  time.Duration
}

func getERPConfig(v *viper.Viper) *ERP {
	timeout := v.GetDuration("erp.timeout")
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ERP{
		Endpoint: v.GetString("erp.endpoint"),
		Token:    v.GetString("erp.token"),
		Timeout:  timeout,
	}
}

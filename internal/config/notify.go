package config

import "github.com/spf13/viper"

// Notify notification config struct
type Notify struct {
	Desktop bool
	Email   *Email
}

// Email smtp sender config struct
type Email struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

func getNotifyConfig(v *viper.Viper) *Notify {
	return &Notify{
		Desktop: v.GetBool("notify.desktop"),
		Email: &Email{
			Host:     v.GetString("notify.email.host"),
			Port:     v.GetInt("notify.email.port"),
			Username: v.GetString("notify.email.username"),
			Password: v.GetString("notify.email.password"),
			From:     v.GetString("notify.email.from"),
			To:       v.GetStringSlice("notify.email.to"),
		},
	}
}

package config

import "github.com/spf13/viper"

// Data data layer config struct
type Data struct {
	Redis *Redis
}

// Redis redis config struct
type Redis struct {
	Addr     string
	Username string
	Password string
	DB       int
}

func getDataConfig(v *viper.Viper) *Data {
	return &Data{
		Redis: &Redis{
			Addr:     v.GetString("data.redis.addr"),
			Username: v.GetString("data.redis.username"),
			Password: v.GetString("data.redis.password"),
			DB:       v.GetInt("data.redis.db"),
		},
	}
}

package clientconfig

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the chat client configuration.
type Config struct {
	Server struct {
		URL    string `mapstructure:"url"`
		APIURL string `mapstructure:"api_url"`
	} `mapstructure:"server"`

	Reconnect struct {
		MaxAttempts int           `mapstructure:"max_attempts"`
		Delay       time.Duration `mapstructure:"delay"`
		MaxDelay    time.Duration `mapstructure:"max_delay"`
		Multiplier  float64       `mapstructure:"multiplier"`
	} `mapstructure:"reconnect"`

	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
	LogLevel    string        `mapstructure:"log_level"`
}

// Load reads configs/config.yaml (or path, when set) and lets CHAT_*
// environment variables override it, e.g. CHAT_SERVER_URL.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("./configs") // config file location
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("CHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.url", "ws://localhost:8080/ws")
	v.SetDefault("server.api_url", "http://localhost:8080/api")
	v.SetDefault("reconnect.max_attempts", 10)
	v.SetDefault("reconnect.delay", "5s")
	v.SetDefault("reconnect.max_delay", "5s")
	v.SetDefault("reconnect.multiplier", 1.0)
	v.SetDefault("http_timeout", "15s")
	v.SetDefault("log_level", "info")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	return &cfg, nil
}

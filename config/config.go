package config

import (
	"time"

	"github.com/convoflow/convoflow/engine"
	"github.com/convoflow/convoflow/executor"
	"github.com/convoflow/convoflow/session"
)

type Config struct {
	RedisConfig    RedisStorageConfig
	HttpPort       int
	LogLevel       string
	EngineConfig   engine.Config
	SessionConfig  session.Config
	ExecutorConfig executor.Config
}

type RedisStorageConfig struct {
	Addrs     []string
	Namespace string
}

func Default() Config {
	return Config{
		RedisConfig: RedisStorageConfig{
			Addrs:     []string{"localhost:6379"},
			Namespace: "convoflow",
		},
		HttpPort:       8080,
		LogLevel:       "info",
		EngineConfig:   engine.DefaultConfig(),
		SessionConfig:  session.DefaultConfig(),
		ExecutorConfig: executor.DefaultConfig(),
	}
}

// ParseIdleTTL applies a flag override given in seconds.
func (c *Config) ParseIdleTTL(seconds int) {
	if seconds > 0 {
		c.SessionConfig.IdleTTL = time.Duration(seconds) * time.Second
	}
}

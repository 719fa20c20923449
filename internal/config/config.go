// Package config loads HeadCache's runtime tunables from file and
// environment, the way the teacher's exercises load theirs: defaults set
// on a viper.Viper, then overridden by an optional config file and by
// automatic environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every runtime tunable the headcache process needs.
type Config struct {
	Topiccache TopiccacheConfig `mapstructure:"topiccache"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Eventual   EventualConfig   `mapstructure:"eventual"`
}

// TopiccacheConfig mirrors topiccache.Config's field names so it unmarshals
// directly from config keys, independent of that package's import.
type TopiccacheConfig struct {
	PollTimeout   time.Duration `mapstructure:"poll_timeout"`
	CleanInterval time.Duration `mapstructure:"clean_interval"`
	MaxSize       int           `mapstructure:"max_size"`
}

// KafkaConfig configures the Log Consumer adapter (C1).
type KafkaConfig struct {
	SeedBrokers []string `mapstructure:"seed_brokers"`
	Topics      []string `mapstructure:"topics"`
}

// EventualConfig configures how often a durable-pointer-backed Eventual
// Pointer source (C2) should itself refresh, if one is wired in.
type EventualConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// Load reads configuration from configPath (if non-empty) layered over
// defaults, then environment variables prefixed HEADCACHE_ (e.g.
// HEADCACHE_KAFKA_SEED_BROKERS).
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	}

	v.SetEnvPrefix("headcache")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("topiccache.poll_timeout", "10ms")
	v.SetDefault("topiccache.clean_interval", "3s")
	v.SetDefault("topiccache.max_size", 100_000)

	v.SetDefault("kafka.seed_brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topics", []string{})

	v.SetDefault("eventual.poll_interval", "30s")
}

// Validate checks the invariants Load cannot express as defaults alone.
func (c *Config) Validate() error {
	if c.Topiccache.MaxSize <= 0 {
		return fmt.Errorf("config: topiccache.max_size must be positive, got %d", c.Topiccache.MaxSize)
	}
	if c.Topiccache.PollTimeout <= 0 {
		return fmt.Errorf("config: topiccache.poll_timeout must be positive")
	}
	if c.Topiccache.CleanInterval <= 0 {
		return fmt.Errorf("config: topiccache.clean_interval must be positive")
	}
	if len(c.Kafka.SeedBrokers) == 0 {
		return fmt.Errorf("config: kafka.seed_brokers must not be empty")
	}
	if len(c.Kafka.Topics) == 0 {
		return fmt.Errorf("config: kafka.topics must not be empty")
	}
	return nil
}

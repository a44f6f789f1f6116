package packforge

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/disgoorg/snowflake/v2"
	"github.com/pelletier/go-toml/v2"

	"github.com/packforge/packforge/packforge/database"
)

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err = toml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type Config struct {
	Log    LogConfig         `toml:"log"`
	DB     database.DBConfig `toml:"db"`
	AWS    AWSConfig         `toml:"aws"`
	Queues QueueConfig       `toml:"queues"`
	Alerts AlertConfig       `toml:"alerts"`
}

type LogConfig struct {
	Level     slog.Level `toml:"level"`
	Format    string     `toml:"format"`
	AddSource bool       `toml:"add_source"`
}

type AWSConfig struct {
	Key      string `toml:"key"`
	Secret   string `toml:"secret"`
	Region   string `toml:"region"`
	Endpoint string `toml:"endpoint"`
}

type QueueConfig struct {
	GrantPack        string `toml:"grant_pack"`
	GrantPackDLQ     string `toml:"grant_pack_dlq"`
	TradeAccepted    string `toml:"trade_accepted"`
	TradeAcceptedDLQ string `toml:"trade_accepted_dlq"`
	MaxInFlight      int64  `toml:"max_in_flight"`
}

type AlertConfig struct {
	WebhookID     snowflake.ID `toml:"webhook_id"`
	WebhookToken  string       `toml:"webhook_token"`
	ArchiveBucket string       `toml:"archive_bucket"`
}

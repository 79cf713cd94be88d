// Package conf loads the bulk-ingest process's runtime configuration from
// the environment, the way the rest of this corpus does it with
// envconfig rather than hand-rolled flag parsing.
package conf

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is every knob the demo CLI and a production deployment need:
// where the database's procedure gateway lives, where Kafka is, and the
// per-shard queue trigger size new loaders request by default.
type Config struct {
	ServerAddress         string        `envconfig:"SERVER_ADDRESS" default:"localhost:21212"`
	HeartbeatInterval     time.Duration `envconfig:"HEARTBEAT_INTERVAL" default:"5s"`
	AutoReconnect         bool          `envconfig:"AUTO_RECONNECT" default:"true"`
	DefaultQueueTrigger   int           `envconfig:"DEFAULT_QUEUE_TRIGGER" default:"200"`
	KafkaBrokers          string        `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	KafkaGroupID          string        `envconfig:"KAFKA_GROUP_ID" default:"bulkload"`
	KafkaPollTimeout      time.Duration `envconfig:"KAFKA_POLL_TIMEOUT" default:"500ms"`
	KafkaMaxBatchMessages int           `envconfig:"KAFKA_MAX_BATCH_MESSAGES" default:"500"`
	LogLevel              string        `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads Config from environment variables prefixed BULKLOAD_, e.g.
// BULKLOAD_SERVER_ADDRESS.
func Load() (*Config, error) {
	var c Config
	if err := envconfig.Process("bulkload", &c); err != nil {
		return nil, fmt.Errorf("cannot load configuration: %w", err)
	}
	return &c, nil
}

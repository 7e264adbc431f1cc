package backend

import (
	"errors"
	"fmt"

	"accounting/internal/config"
)

// Config holds configuration for store and bus creation
type Config struct {
	Store StoreType
	Bus   BusType

	SQLiteDBPath string
	DatabaseURL  string

	// ClientName identifies this process to brokers.
	ClientName string

	AMQPURL      string
	AMQPExchange string
	// AMQPQueue is empty for private per-instance queues.
	AMQPQueue string

	NATSURL     string
	NATSSubject string
	// NATSQueue is empty when every subscriber should see every message.
	NATSQueue string

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroup   string
}

// FromAppConfig converts the application config to backend config for a
// process playing role. instance must be unique per process; server
// instances derive private subscription names from it.
func FromAppConfig(appConfig *config.Config, role Role, instance string) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("app config is nil")
	}

	cfg := Config{
		Store:        StoreType(appConfig.DataBackend),
		Bus:          BusType(appConfig.EventsBackend),
		SQLiteDBPath: appConfig.SQLiteDBPath,
		DatabaseURL:  appConfig.DatabaseURL,
		ClientName:   "accounting-" + instance,
		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		NATSURL:      appConfig.NATSURL,
		NATSSubject:  appConfig.NATSSubject,
		KafkaBrokers: appConfig.KafkaBrokers,
		KafkaTopic:   appConfig.KafkaTopic,
	}

	switch role {
	case RoleMirror:
		cfg.ClientName = "accounting-mirror-" + instance
		cfg.AMQPQueue = appConfig.AMQPQueue
		cfg.NATSQueue = appConfig.NATSQueue
		cfg.KafkaGroup = appConfig.KafkaGroup
	default:
		// Kafka has no private subscriptions; a group nobody else joins
		// behaves like one.
		cfg.KafkaGroup = appConfig.KafkaGroup + "-server-" + instance
	}

	return cfg, cfg.Validate()
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Store.IsValid() {
		return fmt.Errorf("invalid store type: %s", c.Store)
	}
	if !c.Bus.IsValid() {
		return fmt.Errorf("invalid event bus type: %s", c.Bus)
	}

	switch c.Store {
	case SQLiteStore:
		if c.SQLiteDBPath == "" {
			return errors.New("SQLite database path is required for sqlite store")
		}
	case PostgresStore:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required for postgres store")
		}
	}

	switch c.Bus {
	case AMQPBus:
		if c.AMQPURL == "" || c.AMQPExchange == "" {
			return errors.New("AMQP URL and exchange are required for amqp bus")
		}
	case NATSBus:
		if c.NATSURL == "" || c.NATSSubject == "" {
			return errors.New("NATS URL and subject are required for nats bus")
		}
	case KafkaBus:
		if len(c.KafkaBrokers) == 0 || c.KafkaTopic == "" {
			return errors.New("Kafka brokers and topic are required for kafka bus")
		}
	}
	return nil
}

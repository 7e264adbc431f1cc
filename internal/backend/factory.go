package backend

import (
	"context"
	"fmt"

	"accounting/internal/events"
	"accounting/internal/events/amqp"
	"accounting/internal/events/kafka"
	"accounting/internal/events/nats"
	"accounting/internal/log"
	"accounting/internal/storage"
	"accounting/internal/storage/memory"
	"accounting/internal/store"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

var _ Factory = (*DefaultFactory)(nil)

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) *DefaultFactory {
	return &DefaultFactory{
		logger: log.OrDefault(logger).WithComponent(log.ComponentBackend),
	}
}

// CreateStore opens the configured data backend, running migrations for the
// SQL ones.
func (f *DefaultFactory) CreateStore(_ context.Context, config Config) (store.Store, error) {
	switch config.Store {
	case MemoryStore:
		f.logger.Warn("Using in-memory store, data is lost on restart")
		return memory.New(), nil
	case SQLiteStore:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite store", "db_path", config.SQLiteDBPath)
		return repo, nil
	case PostgresStore:
		repo, err := storage.NewPostgresRepository(config.DatabaseURL, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres repository: %w", err)
		}
		f.logger.Info("Initialized Postgres store")
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported store type: %s", config.Store)
	}
}

// CreateBus connects the configured event transport. NoBus yields a Noop bus.
func (f *DefaultFactory) CreateBus(_ context.Context, config Config) (events.Bus, error) {
	switch config.Bus {
	case NoBus:
		return events.Noop{}, nil
	case AMQPBus:
		client, err := amqp.NewClient(amqp.Config{
			URL:      config.AMQPURL,
			Exchange: config.AMQPExchange,
			Queue:    config.AMQPQueue,
		}, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize AMQP client: %w", err)
		}
		f.logger.Info("Initialized AMQP bus",
			"exchange", config.AMQPExchange,
			"queue", config.AMQPQueue)
		return client, nil
	case NATSBus:
		bus, err := nats.Connect(nats.Config{
			URL:        config.NATSURL,
			Subject:    config.NATSSubject,
			QueueGroup: config.NATSQueue,
			Name:       config.ClientName,
		}, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize NATS bus: %w", err)
		}
		f.logger.Info("Initialized NATS bus",
			"subject", config.NATSSubject,
			"queue_group", config.NATSQueue)
		return bus, nil
	case KafkaBus:
		bus, err := kafka.New(kafka.Config{
			Brokers: config.KafkaBrokers,
			Topic:   config.KafkaTopic,
			GroupID: config.KafkaGroup,
		}, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Kafka bus: %w", err)
		}
		f.logger.Info("Initialized Kafka bus",
			"topic", config.KafkaTopic,
			"group", config.KafkaGroup)
		return bus, nil
	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", config.Bus)
	}
}

// GetStoreTypes returns all supported store types
func GetStoreTypes() []StoreType {
	return []StoreType{MemoryStore, SQLiteStore, PostgresStore}
}

// GetBusTypes returns all supported event bus types
func GetBusTypes() []BusType {
	return []BusType{NoBus, AMQPBus, NATSBus, KafkaBus}
}

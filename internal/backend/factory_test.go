package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accounting/internal/config"
	"accounting/internal/core"
	"accounting/internal/events"
	"accounting/internal/log"
)

func appConfig() *config.Config {
	return &config.Config{
		DataBackend:   config.BackendMemory,
		EventsBackend: config.EventsKafka,
		AMQPQueue:     "accounting-mirror",
		NATSQueue:     "accounting-mirror",
		KafkaBrokers:  []string{"localhost:9092"},
		KafkaTopic:    "accounting.records",
		KafkaGroup:    "accounting-mirror",
	}
}

func TestFromAppConfig_Roles(t *testing.T) {
	server, err := FromAppConfig(appConfig(), RoleServer, "abc")
	require.NoError(t, err)
	assert.Empty(t, server.AMQPQueue, "server instances use private queues")
	assert.Empty(t, server.NATSQueue)
	assert.Equal(t, "accounting-mirror-server-abc", server.KafkaGroup)
	assert.Equal(t, "accounting-abc", server.ClientName)

	mirror, err := FromAppConfig(appConfig(), RoleMirror, "abc")
	require.NoError(t, err)
	assert.Equal(t, "accounting-mirror", mirror.AMQPQueue)
	assert.Equal(t, "accounting-mirror", mirror.NATSQueue)
	assert.Equal(t, "accounting-mirror", mirror.KafkaGroup)
}

func TestFromAppConfig_Nil(t *testing.T) {
	_, err := FromAppConfig(nil, RoleServer, "x")
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "memory without bus", cfg: Config{Store: MemoryStore, Bus: NoBus}},
		{name: "unknown store", cfg: Config{Store: "mongo", Bus: NoBus}, wantErr: "invalid store type"},
		{name: "unknown bus", cfg: Config{Store: MemoryStore, Bus: "redis"}, wantErr: "invalid event bus type"},
		{name: "sqlite without path", cfg: Config{Store: SQLiteStore, Bus: NoBus}, wantErr: "SQLite database path"},
		{name: "postgres without url", cfg: Config{Store: PostgresStore, Bus: NoBus}, wantErr: "database URL"},
		{name: "amqp without exchange", cfg: Config{Store: MemoryStore, Bus: AMQPBus, AMQPURL: "amqp://x"}, wantErr: "AMQP"},
		{name: "nats without subject", cfg: Config{Store: MemoryStore, Bus: NATSBus, NATSURL: "nats://x"}, wantErr: "NATS"},
		{name: "kafka without brokers", cfg: Config{Store: MemoryStore, Bus: KafkaBus, KafkaTopic: "t"}, wantErr: "Kafka"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFactory_MemoryStoreAndNoopBus(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(log.Discard())
	cfg := Config{Store: MemoryStore, Bus: NoBus}

	st, err := f.CreateStore(ctx, cfg)
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.Ping(ctx))

	bus, err := f.CreateBus(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, events.Noop{}, bus)
}

func TestFactory_SQLiteStore(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(log.Discard())
	cfg := Config{
		Store:        SQLiteStore,
		Bus:          NoBus,
		SQLiteDBPath: filepath.Join(t.TempDir(), "nested", "accounting.db"),
	}

	st, err := f.CreateStore(ctx, cfg)
	require.NoError(t, err)
	defer st.Close()

	u, err := st.CreateUser(ctx, "a@example.com", []byte("hash"))
	require.NoError(t, err)
	_, err = st.Insert(ctx, core.NewRecord{UserID: u.ID, Amount: decimal.NewFromInt(5), Type: core.Income})
	require.NoError(t, err)

	records, err := st.ListByUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestFactory_UnsupportedTypes(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(log.Discard())

	_, err := f.CreateStore(ctx, Config{Store: "sheets"})
	assert.ErrorContains(t, err, "unsupported store type")

	_, err = f.CreateBus(ctx, Config{Bus: "sqs"})
	assert.ErrorContains(t, err, "unsupported event bus type")
}

func TestTypes(t *testing.T) {
	for _, st := range GetStoreTypes() {
		assert.True(t, st.IsValid(), st.String())
	}
	for _, bt := range GetBusTypes() {
		assert.True(t, bt.IsValid(), bt.String())
	}
	assert.False(t, StoreType("sheets").IsValid())
	assert.False(t, BusType("").IsValid())
}

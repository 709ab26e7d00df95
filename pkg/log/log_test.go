package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initBuffer(t *testing.T, level Level) *bytes.Buffer {
	t.Helper()
	prevLogger, prevLevel := Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	var buf bytes.Buffer
	Init(Config{Level: level, JSONOutput: true, Output: &buf})
	return &buf
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
	return entry
}

func TestContextLoggers(t *testing.T) {
	tests := []struct {
		name   string
		logger func() zerolog.Logger
		field  string
		value  string
	}{
		{name: "component", logger: func() zerolog.Logger { return WithComponent("lcm") }, field: "component", value: "lcm"},
		{name: "node", logger: func() zerolog.Logger { return WithNodeID("5") }, field: "node_id", value: "5"},
		{name: "transaction", logger: func() zerolog.Logger { return WithTransactionID("tx-1") }, field: "transaction_id", value: "tx-1"},
		{name: "graph", logger: func() zerolog.Logger { return WithGraph("default") }, field: "graph", value: "default"},
		{name: "task", logger: func() zerolog.Logger { return WithTaskID("netconfig") }, field: "task_id", value: "netconfig"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := initBuffer(t, DebugLevel)
			logger := tt.logger()
			logger.Warn().Msg("hello")

			entry := lastEntry(t, buf)
			assert.Equal(t, tt.value, entry[tt.field])
			assert.Equal(t, "warn", entry["level"])
			assert.Equal(t, "hello", entry["message"])
		})
	}
}

func TestInit_Level(t *testing.T) {
	buf := initBuffer(t, WarnLevel)
	logger := WithComponent("test")

	logger.Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	logger.Error().Msg("kept")
	assert.Equal(t, "kept", lastEntry(t, buf)["message"])
}

func TestInit_UnknownLevelDefaultsToInfo(t *testing.T) {
	initBuffer(t, Level("verbose"))
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

package cli

import (
	"context"
	"testing"

	"fintrack/internal/backend"
	"fintrack/internal/log"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAndValidateConfig(t *testing.T) {
	t.Setenv("DATA_BACKEND", "memory")
	t.Setenv("AMQP_URL", "")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, logger, err := LoadAndValidateConfig(log.ComponentCLI)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.DataBackend)
	assert.Equal(t, log.ComponentCLI, logger.Component())

	t.Setenv("PORT", "not-a-port")
	_, logger, err = LoadAndValidateConfig(log.ComponentCLI)
	require.Error(t, err)
	assert.NotNil(t, logger, "a logger is returned so the failure can be reported")
}

func TestOpenBackend(t *testing.T) {
	t.Setenv("DATA_BACKEND", "memory")
	t.Setenv("AMQP_URL", "")
	t.Setenv("DEFAULT_CURRENCY", "GBP")

	cfg, logger, err := LoadAndValidateConfig(log.ComponentCLI)
	require.NoError(t, err)

	b, bc, err := OpenBackend(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, backend.MemoryBackend, bc.Type)
	assert.Equal(t, "GBP", bc.DefaultCurrency)
	assert.NotNil(t, b.Ledger)
	assert.Nil(t, b.Events)
}

func TestShutdownContextStop(t *testing.T) {
	ctx, stop := ShutdownContext(log.New(log.DefaultConfig()))
	require.NoError(t, ctx.Err())
	stop()
	<-ctx.Done()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/fraudscore/internal/domain"
)

func TestInitDisabled(t *testing.T) {
	shutdown, err := Init(context.Background(), domain.TracingConfig{Enabled: false}, "test")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitWithoutEndpoint(t *testing.T) {
	shutdown, err := Init(context.Background(), domain.TracingConfig{Enabled: true}, "test")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

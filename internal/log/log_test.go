package log

import (
	"context"
	"log/slog"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextRoundTrip(t *testing.T) {
	assert.Equal(t, slog.Default(), FromContext(context.Background()))

	l := New("api")
	ctx := IntoContext(context.Background(), l)
	assert.Same(t, l, FromContext(ctx))
}

func TestChildPrefix(t *testing.T) {
	sub := Child(New("scanner"), "session")
	h, ok := sub.Handler().(*log.Logger)
	require.True(t, ok)
	assert.Equal(t, "scanner/session", h.GetPrefix())
}

func TestSetLevel(t *testing.T) {
	t.Cleanup(func() { level = log.InfoLevel })

	require.NoError(t, SetLevel(""))
	assert.Equal(t, log.InfoLevel, level)

	require.NoError(t, SetLevel("DEBUG"))
	assert.Equal(t, log.DebugLevel, level)
	h := New("worker").Handler().(*log.Logger)
	assert.Equal(t, log.DebugLevel, h.GetLevel())

	assert.Error(t, SetLevel("chatty"))
	assert.Equal(t, log.DebugLevel, level)
}

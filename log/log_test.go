package log

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("warning")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestModuleFiltering(t *testing.T) {
	prev := Root()
	defer SetDefault(prev)

	var buf bytes.Buffer
	SetDefault(NewLogger(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: LevelTrace})))

	Debug(Comparator, "hidden")
	assert.Empty(t, buf.String())

	EnableModule(Comparator)
	defer DisableModule(Comparator)
	Debug(Comparator, "shown", "pc", 0x8000)
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "module=comparator")

	buf.Reset()
	Warn(Session, "always")
	assert.Contains(t, buf.String(), "always")
}

package logging

import (
	"bytes"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Configure("warn", &buf))
	t.Cleanup(func() { _ = Configure("info", nil) })

	log.Info("hidden message")
	log.Warn("visible message", "host", "10.0.0.1:22")

	out := buf.String()
	assert.NotContains(t, out, "hidden message")
	assert.Contains(t, out, "visible message")
	assert.Contains(t, out, "host=10.0.0.1:22")
}

func TestConfigureRejectsUnknownLevel(t *testing.T) {
	assert.ErrorContains(t, Configure("verbose", nil), "invalid log level")
}

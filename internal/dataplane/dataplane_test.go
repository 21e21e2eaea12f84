//go:build !windows

package dataplane

import (
	"bytes"
	"context"
	"testing"
	"time"

	apperr "sshOrchestrator/internal/error"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func script(s string) []string {
	return []string{"sh", "-c", s}
}

func TestStartWaitsForMarker(t *testing.T) {
	var out bytes.Buffer
	p, err := Start(context.Background(), Options{
		Argv:    script(`echo "EAL: probing"; sleep 0.1; echo "DPDK main loop started"; exec sleep 30`),
		Marker:  "main loop started",
		Timeout: 5 * time.Second,
		Output:  &out,
	})
	require.NoError(t, err)
	t.Cleanup(func() { p.Stop() })

	assert.True(t, p.Running())
	assert.Contains(t, p.Tail(), "EAL: probing")

	require.NoError(t, p.Stop())
	assert.False(t, p.Running())
	assert.Error(t, p.Wait())
	assert.Contains(t, out.String(), "DPDK main loop started\n")
}

func TestStartFailsWhenProcessExitsEarly(t *testing.T) {
	p, err := Start(context.Background(), Options{
		Argv:    script(`echo "cannot init port 0" >&2; exit 2`),
		Marker:  "main loop started",
		Timeout: 5 * time.Second,
	})
	require.Error(t, err)
	assert.Nil(t, p)
	assert.Contains(t, err.Error(), "exited before becoming ready")
	assert.Contains(t, err.Error(), "cannot init port 0")
}

func TestStartSucceedsWhenMarkerIsLastLine(t *testing.T) {
	p, err := Start(context.Background(), Options{
		Argv:    script(`echo ready`),
		Marker:  "ready",
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)
	assert.NoError(t, p.Wait())
	assert.False(t, p.Running())
}

func TestStartTimesOut(t *testing.T) {
	start := time.Now()
	_, err := Start(context.Background(), Options{
		Argv:    script(`echo starting; exec sleep 30`),
		Marker:  "never printed",
		Timeout: 200 * time.Millisecond,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.Contains(t, err.Error(), "starting")
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestStartHonorsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := Start(ctx, Options{Argv: script(`exec sleep 30`), Marker: "x", Timeout: time.Minute})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStartValidatesOptions(t *testing.T) {
	_, err := Start(context.Background(), Options{Marker: "x"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = Start(context.Background(), Options{Argv: []string{"true"}})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

//go:build !windows

package ssh

import (
	"context"
	"os"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"sshOrchestrator/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// processAlive traktuje procesy zombie jako zakończone
func processAlive(pid string) bool {
	n, err := strconv.Atoi(pid)
	if err != nil {
		return false
	}
	if stat, err := os.ReadFile("/proc/" + pid + "/stat"); err == nil {
		fields := strings.Fields(string(stat))
		return len(fields) > 2 && fields[2] != "Z"
	}
	return syscall.Kill(n, 0) == nil
}

func TestRegistryListMissingFileIsEmpty(t *testing.T) {
	conn, _ := connectedTestConnection(t)

	pids, err := conn.Registry().List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pids)
}

func TestRegistryKillAll(t *testing.T) {
	conn, _ := connectedTestConnection(t)
	ctx := context.Background()
	registry := conn.Registry()

	for _, name := range []string{"sleeper1", "sleeper2"} {
		_, err := conn.Run(ctx, models.Job{Command: "sleep", Parameters: "30", Background: true, LogName: name})
		require.NoError(t, err)
	}

	pids, err := registry.List(ctx)
	require.NoError(t, err)
	require.Len(t, pids, 2)
	t.Cleanup(func() {
		for _, pid := range pids {
			if n, err := strconv.Atoi(pid); err == nil {
				syscall.Kill(n, syscall.SIGKILL)
			}
		}
	})
	for _, pid := range pids {
		assert.True(t, processAlive(pid), "pid %s should be running", pid)
	}

	report, err := registry.KillAll(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, pids, report.Killed)
	assert.Empty(t, report.Gone)

	for _, pid := range pids {
		assert.Eventually(t, func() bool { return !processAlive(pid) }, 5*time.Second, 20*time.Millisecond)
	}

	pids, err = registry.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, pids)

	// Drugie wywołanie na pustym rejestrze
	report, err = registry.KillAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Total())
}

func TestRegistryKillAllReportsGoneProcesses(t *testing.T) {
	conn, _ := connectedTestConnection(t)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(conn.PidFile(), []byte("2147483646\n"), 0644))

	report, err := conn.Registry().KillAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Killed)
	assert.Equal(t, []string{"2147483646"}, report.Gone)

	data, err := os.ReadFile(conn.PidFile())
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestParseKillOutput(t *testing.T) {
	report := parseKillOutput("killed 12\ngone 13\nnoise\n\nkilled 14\n")
	assert.Equal(t, []string{"12", "14"}, report.Killed)
	assert.Equal(t, []string{"13"}, report.Gone)
	assert.Equal(t, 3, report.Total())
}

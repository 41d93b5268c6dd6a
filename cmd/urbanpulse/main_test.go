package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_RegistersSubcommands(t *testing.T) {
	root := newRootCommand()
	for _, name := range []string{"run", "extract", "load", "transform", "schedule", "serve", "dashboard", "sweep", "seed", "check"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestCheckCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	dbPath := filepath.Join(dir, "data", "pulse.db")
	require.NoError(t, os.WriteFile(cfgPath, []byte("cities: [Toronto]\ndatabase:\n  path: "+dbPath+"\nlogging:\n  level: error\n"), 0o644))
	t.Setenv("OPENWEATHERMAP_KEY", "")

	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetArgs([]string{"--config", cfgPath, "check"})

	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "config ok")
	assert.Contains(t, out.String(), "urban_stress")
	assert.Contains(t, out.String(), "openweathermap_key is not set")
	assert.FileExists(t, dbPath)
}

func TestMissingConfigFails(t *testing.T) {
	root := newRootCommand()
	root.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "absent.yaml"), "check"})

	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "absent.yaml")
}

func TestLoadRequiresInFlag(t *testing.T) {
	root := newRootCommand()
	root.SetArgs([]string{"load"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})

	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "in")
}

func TestSyntheticWeather_DiurnalShape(t *testing.T) {
	day := time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC)
	afternoon := syntheticWeather("Toronto", day.Add(15*time.Hour))
	night := syntheticWeather("Toronto", day.Add(3*time.Hour))

	assert.Equal(t, "Toronto", afternoon.City)
	assert.InDelta(t, 24.0, afternoon.Temperature, 1e-9)
	assert.InDelta(t, 12.0, night.Temperature, 1e-9)
	assert.Greater(t, night.Humidity, afternoon.Humidity)
	assert.Equal(t, day.Add(15*time.Hour), afternoon.Timestamp)
}

type checker struct{ err error }

func (c checker) CheckReadiness(context.Context) error { return c.err }

func TestReadiness(t *testing.T) {
	assert.NoError(t, readiness{checker{}, checker{}}.CheckReadiness(context.Background()))

	notReady := errors.New("no transform yet")
	assert.ErrorIs(t, readiness{checker{}, checker{err: notReady}}.CheckReadiness(context.Background()), notReady)
}

func TestBackground_StopWaitsForReturn(t *testing.T) {
	started := make(chan struct{})
	var finished bool
	stop := background(context.Background(), func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		finished = true
	})

	<-started
	stop()
	assert.True(t, finished, "stop returns only after fn has")
}

func TestBackground_ParentCancelStopsFn(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	returned := make(chan struct{})
	stop := background(ctx, func(ctx context.Context) {
		<-ctx.Done()
		close(returned)
	})

	cancel()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("fn did not observe parent cancellation")
	}
	stop()
}

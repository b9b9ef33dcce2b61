package startup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

type fakeDep struct {
	name      string
	dependsOn []string
	failures  int
	log       *[]string
}

func (d *fakeDep) GetName() string     { return d.name }
func (d *fakeDep) DependsOn() []string { return d.dependsOn }

func (d *fakeDep) Start(context.Context) error {
	if d.failures > 0 {
		d.failures--
		return errors.New(d.name + " unavailable")
	}
	*d.log = append(*d.log, "start:"+d.name)
	return nil
}

func (d *fakeDep) Stop(context.Context) error {
	*d.log = append(*d.log, "stop:"+d.name)
	return nil
}

func TestStartup_Order(t *testing.T) {
	var log []string
	s := NewStartup(getTestLogger(), 1)
	s.AddDependency(&fakeDep{name: "api", dependsOn: []string{"clover", "redis"}, log: &log})
	s.AddDependency(&fakeDep{name: "redis", log: &log})
	s.AddDependency(&fakeDep{name: "clover", log: &log})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"start:clover", "start:redis", "start:api"}, log)
	assert.Equal(t, StartupStatusStarted, s.Status("api"))

	log = nil
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, []string{"stop:api", "stop:redis", "stop:clover"}, log)
	assert.Equal(t, StartupStatusStopped, s.Status("clover"))
}

func TestStartup_Retries(t *testing.T) {
	var log []string
	s := NewStartup(getTestLogger(), 3)
	s.backoffUnit = time.Millisecond
	s.AddDependency(&fakeDep{name: "clover", failures: 2, log: &log})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 3, s.attempt)
	assert.Equal(t, []string{"start:clover"}, log)
}

func TestStartup_GivesUp(t *testing.T) {
	var log []string
	s := NewStartup(getTestLogger(), 2)
	s.backoffUnit = time.Millisecond
	s.AddDependency(&fakeDep{name: "kafka", failures: 5, log: &log})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "startup failed after 2 attempts")
	assert.Equal(t, StartupStatusFailed, s.Status("kafka"))
}

func TestStartup_Cycle(t *testing.T) {
	var log []string
	s := NewStartup(getTestLogger(), 1)
	s.AddDependency(&fakeDep{name: "a", dependsOn: []string{"b"}, log: &log})
	s.AddDependency(&fakeDep{name: "b", dependsOn: []string{"a"}, log: &log})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dependency cycle")
}

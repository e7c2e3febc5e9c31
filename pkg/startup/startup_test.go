package startup

import (
	"context"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDependency struct {
	name      string
	dependsOn []string
	failures  int

	starts []string
	stops  []string
	order  *[]string
}

func (f *fakeDependency) GetName() string     { return f.name }
func (f *fakeDependency) DependsOn() []string { return f.dependsOn }

func (f *fakeDependency) Start(ctx context.Context) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("not ready")
	}
	*f.order = append(*f.order, f.name)
	return nil
}

func (f *fakeDependency) Stop(ctx context.Context) error {
	*f.order = append(*f.order, "stop:"+f.name)
	return nil
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestStartup_DependencyOrder(t *testing.T) {
	var order []string

	db := &fakeDependency{name: "database", order: &order}
	consumer := &fakeDependency{name: "consumer", dependsOn: []string{"database"}, order: &order}

	s := NewStartup(testLogger(), 3)
	s.AddDependency(consumer)
	s.AddDependency(db)

	err := s.Start(context.Background())
	require.NoError(t, err)

	dbIdx, consumerIdx := -1, -1
	for i, name := range order {
		switch name {
		case "database":
			dbIdx = i
		case "consumer":
			consumerIdx = i
		}
	}
	require.NotEqual(t, -1, dbIdx)
	require.NotEqual(t, -1, consumerIdx)
	assert.Less(t, dbIdx, consumerIdx, "database must start before the consumer")
}

func TestStartup_RetriesFailedDependency(t *testing.T) {
	var order []string

	flaky := &fakeDependency{name: "broker", failures: 1, order: &order}

	s := NewStartup(testLogger(), 3)
	s.AddDependency(flaky)

	err := s.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"broker"}, order)
}

func TestStartup_GivesUpAfterMaxAttempts(t *testing.T) {
	var order []string

	broken := &fakeDependency{name: "broker", failures: 10, order: &order}

	s := NewStartup(testLogger(), 2)
	s.AddDependency(broken)

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
}

func TestStartup_StopStopsStartedDependencies(t *testing.T) {
	var order []string

	db := &fakeDependency{name: "database", order: &order}

	s := NewStartup(testLogger(), 1)
	s.AddDependency(db)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))

	assert.Contains(t, order, "stop:database")
}

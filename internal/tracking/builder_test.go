package tracking

import (
	"context"
	"errors"
	"testing"

	"dropified/tracksync/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPolicy = LargeBatchPolicy{Threshold: 100, MaxConcurrency: 1, MinDelaySeconds: 3}

func TestBuildNothingToSync(t *testing.T) {
	backend := &fakeBackend{count: 0}
	_, err := NewQueueBuilder(backend, testPolicy).Build(context.Background(), RunRequest{StoreID: "1"})
	assert.True(t, errors.Is(err, ErrNothingToSync))

	backend = &fakeBackend{count: 5}
	_, err = NewQueueBuilder(backend, testPolicy).Build(context.Background(), RunRequest{StoreID: "1"})
	assert.True(t, errors.Is(err, ErrNothingToSync))
}

func TestBuildLargeBatchSlowsDown(t *testing.T) {
	backend := &fakeBackend{count: 250, orders: tasks(domain.SourceTypeAliExpress, "1", "2")}
	q, err := NewQueueBuilder(backend, testPolicy).Build(context.Background(), RunRequest{
		StoreID: "1",
		Config:  domain.RunConfiguration{DelaySeconds: 1, Concurrency: 5},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, q.Config.Concurrency)
	assert.Equal(t, 3.0, q.Config.DelaySeconds)
	assert.Equal(t, 2, q.Pending())
}

func TestBuildExplicitPacingIsKept(t *testing.T) {
	backend := &fakeBackend{count: 250, orders: tasks(domain.SourceTypeAliExpress, "1")}
	q, err := NewQueueBuilder(backend, testPolicy).Build(context.Background(), RunRequest{
		StoreID:        "1",
		Config:         domain.RunConfiguration{DelaySeconds: 500, Concurrency: 8},
		ExplicitPacing: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 8, q.Config.Concurrency)
	assert.Equal(t, 100.0, q.Config.DelaySeconds)
}

func TestBuildSmallBatchUnchanged(t *testing.T) {
	backend := &fakeBackend{count: 100, orders: tasks(domain.SourceTypeAliExpress, "1")}
	q, err := NewQueueBuilder(backend, testPolicy).Build(context.Background(), RunRequest{
		StoreID: "1",
		Config:  domain.RunConfiguration{DelaySeconds: 1, Concurrency: 4},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, q.Config.Concurrency)
	assert.Equal(t, 1.0, q.Config.DelaySeconds)
}

func TestBuildExplicitIDsSkipsCount(t *testing.T) {
	backend := &fakeBackend{orders: tasks(domain.SourceTypeEbay, "4", "5")}
	q, err := NewQueueBuilder(backend, testPolicy).Build(context.Background(), RunRequest{
		StoreID: "1",
		IDs:     []string{"4", "5"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, backend.countCalls)
	assert.Equal(t, []string{"4", "5"}, backend.listedIDs)
	assert.Equal(t, 2, q.Pending())
}

package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardpress/internal/pkg/logger"
)

type scriptedSource struct {
	mu     sync.Mutex
	items  []popResult
	cancel context.CancelFunc
}

type popResult struct {
	id  string
	err error
}

func (s *scriptedSource) Pop(ctx context.Context, _ time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		s.cancel()
		return "", ctx.Err()
	}
	next := s.items[0]
	s.items = s.items[1:]
	return next.id, next.err
}

func TestConsumeHandlesJobsInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &scriptedSource{
		cancel: cancel,
		items: []popResult{
			{id: "job_a"},
			{id: ""},
			{err: errors.New("connection reset")},
			{id: "job_b"},
		},
	}

	var got []string
	var ctxJobIDs []string
	handle := func(ctx context.Context, id string) error {
		got = append(got, id)
		ctxJobIDs = append(ctxJobIDs, logger.JobID(ctx))
		if id == "job_b" {
			return errors.New("render failed")
		}
		return nil
	}

	err := Consume(ctx, src, time.Second, handle, logger.NewNop())
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"job_a", "job_b"}, got)
	assert.Equal(t, got, ctxJobIDs)
}

func TestConsumeStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := Consume(ctx, &scriptedSource{cancel: cancel}, 0, func(context.Context, string) error {
		called = true
		return nil
	}, logger.NewNop())
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

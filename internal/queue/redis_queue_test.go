package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardpress/internal/batch"
)

func TestKeys(t *testing.T) {
	q := NewRedisQueue(nil, "cardpress:jobs")
	assert.Equal(t, "cardpress:jobs", q.Name())
	assert.Equal(t, "cardpress:jobs:job_1:events", q.EventsChannel("job_1"))
	assert.Equal(t, "cardpress:jobs:job_1:cancel", q.cancelKey("job_1"))
}

func TestMessageFlattensEvent(t *testing.T) {
	m := Message{
		JobID:  "job_1",
		Event:  batch.Event{Type: batch.EventCompleted, Processed: 3, Total: 3, Successful: 2, Failed: 1, ArchiveRef: "ast_9"},
		Status: "DONE",
	}
	data, err := json.Marshal(m)
	require.NoError(t, err)

	var flat map[string]any
	require.NoError(t, json.Unmarshal(data, &flat))
	assert.Equal(t, "completed", flat["type"])
	assert.Equal(t, "ast_9", flat["archive_ref"])
	assert.Equal(t, "DONE", flat["status"])

	back, err := DecodeMessage(data)
	require.NoError(t, err)
	assert.Equal(t, m, back)
}

func TestPopTimeoutAgainstUnreachableRedis(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()
	q := NewRedisQueue(rdb, "cardpress:test")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := q.Pop(ctx, 10*time.Millisecond)
	assert.Error(t, err)
}

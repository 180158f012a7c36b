// Package queue is the Redis side of batch jobs: the work list, per-job
// event channels and cancel flags.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"cardpress/internal/batch"
)

// CancelTTL bounds how long an unanswered cancel request is kept.
const CancelTTL = 24 * time.Hour

// Message is what the worker publishes on a job's event channel: a runner
// event, plus the job status once the job has reached a terminal state.
type Message struct {
	JobID string `json:"job_id"`
	batch.Event
	Status string `json:"status,omitempty"`
}

type RedisQueue struct {
	rdb       *redis.Client
	queueName string
}

func NewRedisQueue(rdb *redis.Client, queueName string) *RedisQueue {
	return &RedisQueue{rdb: rdb, queueName: queueName}
}

func (q *RedisQueue) Name() string { return q.queueName }

// EventsChannel is the pub/sub channel of one job.
func (q *RedisQueue) EventsChannel(jobID string) string {
	return fmt.Sprintf("%s:%s:events", q.queueName, jobID)
}

func (q *RedisQueue) cancelKey(jobID string) string {
	return fmt.Sprintf("%s:%s:cancel", q.queueName, jobID)
}

func (q *RedisQueue) Push(ctx context.Context, jobID string) error {
	return q.rdb.LPush(ctx, q.queueName, jobID).Err()
}

// Pop blocks up to timeout for the next job id (BRPOP). It returns "" and no
// error when the timeout elapses.
func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (string, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.queueName).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if len(res) < 2 {
		return "", nil
	}
	return res[1], nil
}

func (q *RedisQueue) Publish(ctx context.Context, m Message) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return q.rdb.Publish(ctx, q.EventsChannel(m.JobID), payload).Err()
}

// Subscribe relays a job's messages until ctx is done or Close is called.
// Undecodable payloads are skipped.
func (q *RedisQueue) Subscribe(ctx context.Context, jobID string) (*Subscription, error) {
	ps := q.rdb.Subscribe(ctx, q.EventsChannel(jobID))
	// Wait for the subscription confirmation so no message published after
	// Subscribe returns is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	out := make(chan Message, 64)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			m, err := DecodeMessage([]byte(msg.Payload))
			if err != nil {
				continue
			}
			select {
			case out <- m:
			case <-ctx.Done():
				return
			}
		}
	}()
	return NewSubscription(out, ps.Close), nil
}

// Subscription delivers the messages of one job on C until closed.
type Subscription struct {
	C     <-chan Message
	close func() error
}

// NewSubscription wraps a message channel and the function that stops it.
func NewSubscription(c <-chan Message, closeFn func() error) *Subscription {
	return &Subscription{C: c, close: closeFn}
}

func (s *Subscription) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

func DecodeMessage(data []byte) (Message, error) {
	var m Message
	err := json.Unmarshal(data, &m)
	return m, err
}

// RequestCancel flags a job for cancellation. The worker polls the flag
// between records.
func (q *RedisQueue) RequestCancel(ctx context.Context, jobID string) error {
	return q.rdb.Set(ctx, q.cancelKey(jobID), "1", CancelTTL).Err()
}

func (q *RedisQueue) CancelRequested(ctx context.Context, jobID string) (bool, error) {
	n, err := q.rdb.Exists(ctx, q.cancelKey(jobID)).Result()
	return n > 0, err
}

func (q *RedisQueue) ClearCancel(ctx context.Context, jobID string) error {
	return q.rdb.Del(ctx, q.cancelKey(jobID)).Err()
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}

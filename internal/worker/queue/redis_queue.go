// Package queue is the Redis list that carries render job ids from the API to workers.
package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"chatreel/internal/pkg/errors"
)

// Message is the payload pushed per job. Workers re-read everything else from the ledger.
type Message struct {
	JobID string `json:"jobId"`
}

// Encode renders m as the list element.
func (m Message) Encode() (string, error) {
	b, err := json.Marshal(m)
	return string(b), err
}

// DecodeMessage parses a list element. A bare id is accepted for older producers.
func DecodeMessage(raw string) (Message, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "{") {
		if raw == "" {
			return Message{}, errors.Validation("empty queue message")
		}
		return Message{JobID: raw}, nil
	}
	var m Message
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return Message{}, errors.WrapWithCode(err, errors.CodeValidation, "queue.decode", "malformed queue message")
	}
	if m.JobID == "" {
		return Message{}, errors.Validation("queue message without jobId")
	}
	return m, nil
}

type RedisQueue struct {
	rdb       *redis.Client
	queueName string
}

func NewRedisQueue(rdb *redis.Client, queueName string) *RedisQueue {
	return &RedisQueue{rdb: rdb, queueName: queueName}
}

func (q *RedisQueue) Name() string { return q.queueName }

// Push enqueues jobID, giving up after timeout so callers are never held by a
// slow or partitioned Redis.
func (q *RedisQueue) Push(ctx context.Context, jobID string, timeout time.Duration) error {
	payload, err := Message{JobID: jobID}.Encode()
	if err != nil {
		return errors.Wrap(err, "queue.push", "encode message")
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := q.rdb.LPush(ctx, q.queueName, payload).Err(); err != nil {
		if timedOut(ctx, err) {
			return errors.WrapWithCode(err, errors.CodeTimeout, "queue.push", "enqueue timed out")
		}
		return errors.WrapWithCode(err, errors.CodeUnavailable, "queue.push", "enqueue failed")
	}
	return nil
}

// timedOut reports whether err came from the enqueue deadline, either as the
// context error or as the socket deadline derived from it.
func timedOut(ctx context.Context, err error) bool {
	return stderrors.Is(err, context.DeadlineExceeded) ||
		stderrors.Is(err, os.ErrDeadlineExceeded) ||
		ctx.Err() != nil
}

// Pop blocks up to wait for the next job id (BRPOP). It returns "" with a nil
// error when the wait elapses without a message.
func (q *RedisQueue) Pop(ctx context.Context, wait time.Duration) (string, error) {
	res, err := q.rdb.BRPop(ctx, wait, q.queueName).Result()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", err
	}
	if len(res) < 2 {
		return "", nil
	}
	m, err := DecodeMessage(res[1])
	if err != nil {
		return "", err
	}
	return m.JobID, nil
}

// Depth is the number of ids waiting in the list.
func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.queueName).Result()
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}

package store

import (
	"context"
	"encoding/json"
	"path"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolplan/trace"
	"github.com/redis/go-redis/v9"
)

// The redis store implements the RunStore interface using Redis as the
// backend. Traces are stored as JSON under a configurable key prefix,
// and a set of run IDs supports listing and cleanup.
// The keys namespace is organized as follows:
// - `/<prefix>/runstore/trace/<runID>` for storing the trace JSON
// - `/<prefix>/runstore/runs` for storing the set of run IDs

type redisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) RunStore {
	return &redisStore{
		client: client,
		prefix: prefix,
	}
}

func NewRedisStoreManager(client *redis.Client, prefix string) RunStoreManager {
	return &redisStore{
		client: client,
		prefix: prefix,
	}
}

func (m *redisStore) getRedisTraceKey(runID string) string {
	return path.Join(m.prefix, "runstore", "trace", runID)
}

func (m *redisStore) getRedisRunListKey() string {
	return path.Join(m.prefix, "runstore", "runs")
}

func (m *redisStore) Save(ctx context.Context, tr *trace.Trace) error {
	if tr == nil || tr.RunID == "" {
		return errors.New("run ID is required")
	}

	data, err := json.Marshal(tr)
	if err != nil {
		return errors.Wrap(err, "failed to marshal trace")
	}

	pipe := m.client.Pipeline()
	pipe.Set(ctx, m.getRedisTraceKey(tr.RunID), data, 0)
	pipe.SAdd(ctx, m.getRedisRunListKey(), tr.RunID)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to store trace in Redis")
	}

	return nil
}

func (m *redisStore) Get(ctx context.Context, runID string) (*trace.Trace, error) {
	data, err := m.client.Get(ctx, m.getRedisTraceKey(runID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errors.WithMessagef(ErrNotFound, "run %s", runID)
		}
		return nil, errors.Wrap(err, "failed to get trace from Redis")
	}

	tr := &trace.Trace{}
	if err := json.Unmarshal([]byte(data), tr); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal trace")
	}
	return tr, nil
}

func (m *redisStore) List(ctx context.Context) ([]string, error) {
	runIDs, err := m.client.SMembers(ctx, m.getRedisRunListKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to list runs from Redis")
	}
	return runIDs, nil
}

func (m *redisStore) Delete(ctx context.Context, runID string) error {
	pipe := m.client.Pipeline()
	pipe.Del(ctx, m.getRedisTraceKey(runID))
	pipe.SRem(ctx, m.getRedisRunListKey(), runID)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to delete trace from Redis")
	}
	return nil
}

func (m *redisStore) Cleanup(ctx context.Context, olderThan time.Duration) (uint32, error) {
	runListKey := m.getRedisRunListKey()
	runIDs, err := m.client.SMembers(ctx, runListKey).Result()
	if err != nil {
		return 0, errors.Wrap(err, "failed to list runs from Redis")
	}

	deleted := uint32(0)
	cutoff := time.Now().Add(-olderThan)
	for _, runID := range runIDs {
		traceKey := m.getRedisTraceKey(runID)
		data, err := m.client.Get(ctx, traceKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return 0, errors.Wrap(err, "failed to get trace")
		}

		var tr trace.Trace
		if err := json.Unmarshal([]byte(data), &tr); err != nil {
			return 0, errors.Wrap(err, "failed to unmarshal trace")
		}

		if tr.FinishedAt.Before(cutoff) {
			pipe := m.client.Pipeline()
			pipe.Del(ctx, traceKey)
			pipe.SRem(ctx, runListKey, runID)
			_, err = pipe.Exec(ctx)
			if err != nil {
				return 0, errors.Wrap(err, "failed to delete trace from Redis")
			}
			deleted++
		}
	}
	return deleted, nil
}

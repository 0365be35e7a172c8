package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"rekamed/internal/audit"
	id "rekamed/pkg/domain"
)

const DefaultRedisPrefix = "rekamed:access_log"

// RedisStore keeps each entry as a JSON string and indexes it in two sorted
// sets, one per patient and one per actor, scored by block id.
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

func NewRedis(client redis.Cmdable, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) entryKey(blockID int64) string {
	return s.prefix + ":entry:" + strconv.FormatInt(blockID, 10)
}

func (s *RedisStore) patientKey(patientID id.UserID) string {
	return s.prefix + ":patient:" + patientID.String()
}

func (s *RedisStore) actorKey(actorID id.UserID) string {
	return s.prefix + ":actor:" + actorID.String()
}

func (s *RedisStore) Put(ctx context.Context, entries []*audit.AccessLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, e := range entries {
			payload, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("encode access log entry %d: %w", e.BlockID, err)
			}
			member := redis.Z{Score: float64(e.BlockID), Member: strconv.FormatInt(e.BlockID, 10)}
			pipe.Set(ctx, s.entryKey(e.BlockID), payload, 0)
			pipe.ZAdd(ctx, s.patientKey(e.PatientID), member)
			pipe.ZAdd(ctx, s.actorKey(e.ActorID), member)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("put access log entries: %w", err)
	}
	return nil
}

func (s *RedisStore) ListByPatient(ctx context.Context, patientID id.UserID, filter audit.LogFilter) ([]*audit.AccessLogEntry, error) {
	return s.list(ctx, s.patientKey(patientID), filter)
}

func (s *RedisStore) ListByActor(ctx context.Context, actorID id.UserID, filter audit.LogFilter) ([]*audit.AccessLogEntry, error) {
	return s.list(ctx, s.actorKey(actorID), filter)
}

func (s *RedisStore) list(ctx context.Context, index string, filter audit.LogFilter) ([]*audit.AccessLogEntry, error) {
	filter = filter.Normalize()
	start := int64(filter.Offset)
	stop := start + int64(filter.Limit) - 1
	members, err := s.client.ZRevRange(ctx, index, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("read access log index: %w", err)
	}
	if len(members) == 0 {
		return []*audit.AccessLogEntry{}, nil
	}

	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = s.prefix + ":entry:" + m
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("read access log entries: %w", err)
	}

	out := make([]*audit.AccessLogEntry, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// index points at a key removed by a concurrent Reset
			continue
		}
		var e audit.AccessLogEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode access log entry %s: %w", members[i], err)
		}
		out = append(out, &e)
	}
	return out, nil
}

// Reset deletes every key under the store's prefix.
func (s *RedisStore) Reset(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+":*", 500).Result()
		if err != nil {
			return fmt.Errorf("scan access log keys: %w", err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("delete access log keys: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eleven-am/livescribe/internal/shared"
)

const (
	recordTTL  = 24 * time.Hour
	metricsTTL = 7 * 24 * time.Hour
)

type Store struct {
	redis *redis.Client
	now   func() time.Time
}

func NewStore(redisClient *redis.Client) *Store {
	return &Store{redis: redisClient, now: time.Now}
}

func (s *Store) Create(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = shared.NewID("rly_")
	}
	now := s.now()
	rec.Status = StatusActive
	rec.StartedAt = now
	rec.LastActiveAt = now

	if err := s.save(ctx, rec); err != nil {
		return err
	}
	if err := s.redis.SAdd(ctx, activeSetKey, rec.ID).Err(); err != nil {
		return err
	}
	return s.IncrementMetric(ctx, FieldSessions, 1)
}

func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	data, err := s.redis.Get(ctx, recordKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode session record: %w", err)
	}
	return &rec, nil
}

// Touch adds activity to the record and to the current hour's metrics.
func (s *Store) Touch(ctx context.Context, id string, delta Activity) error {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	rec.Finals += delta.Finals
	rec.Interims += delta.Interims
	rec.AudioBytes += delta.AudioBytes
	rec.LastActiveAt = s.now()
	if err := s.save(ctx, rec); err != nil {
		return err
	}

	return s.incrementMany(ctx, map[string]int64{
		FieldFinals:     delta.Finals,
		FieldInterims:   delta.Interims,
		FieldAudioBytes: delta.AudioBytes,
	})
}

func (s *Store) End(ctx context.Context, id string, status Status) error {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	now := s.now()
	rec.Status = status
	rec.LastActiveAt = now
	rec.EndedAt = &now
	if err := s.save(ctx, rec); err != nil {
		return err
	}
	if err := s.redis.SRem(ctx, activeSetKey, id).Err(); err != nil {
		return err
	}
	if status == StatusError {
		return s.IncrementMetric(ctx, FieldErrors, 1)
	}
	return nil
}

// Active lists records still marked active. Expired ids are pruned from the set.
func (s *Store) Active(ctx context.Context) ([]*Record, error) {
	ids, err := s.redis.SMembers(ctx, activeSetKey).Result()
	if err != nil {
		return nil, err
	}

	records := make([]*Record, 0, len(ids))
	for _, id := range ids {
		rec, err := s.Get(ctx, id)
		if errors.Is(err, shared.ErrNotFound) {
			s.redis.SRem(ctx, activeSetKey, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *Store) save(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, recordKey(rec.ID), data, recordTTL).Err()
}

func (s *Store) IncrementMetric(ctx context.Context, field string, value int64) error {
	return s.incrementMany(ctx, map[string]int64{field: value})
}

func (s *Store) IncrementBatch(ctx context.Context, failed bool) error {
	fields := map[string]int64{FieldBatchRequests: 1}
	if failed {
		fields[FieldErrors] = 1
	}
	return s.incrementMany(ctx, fields)
}

func (s *Store) incrementMany(ctx context.Context, fields map[string]int64) error {
	now := s.now().UTC()
	key := metricsKey(now.Format("2006-01-02"), now.Hour())

	pipe := s.redis.Pipeline()
	queued := false
	for field, value := range fields {
		if value == 0 {
			continue
		}
		pipe.HIncrBy(ctx, key, field, value)
		queued = true
	}
	if !queued {
		return nil
	}
	pipe.Expire(ctx, key, metricsTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// GetMetrics returns the non-empty hourly buckets of the last hours, newest first.
func (s *Store) GetMetrics(ctx context.Context, hours int) ([]*Metrics, error) {
	now := s.now().UTC()
	var metrics []*Metrics

	for i := 0; i < hours; i++ {
		t := now.Add(-time.Duration(i) * time.Hour)
		date := t.Format("2006-01-02")

		data, err := s.redis.HGetAll(ctx, metricsKey(date, t.Hour())).Result()
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			continue
		}

		metrics = append(metrics, &Metrics{
			Date:          date,
			Hour:          t.Hour(),
			Sessions:      parseCount(data[FieldSessions]),
			Finals:        parseCount(data[FieldFinals]),
			Interims:      parseCount(data[FieldInterims]),
			BatchRequests: parseCount(data[FieldBatchRequests]),
			Errors:        parseCount(data[FieldErrors]),
			AudioBytes:    parseCount(data[FieldAudioBytes]),
		})
	}
	return metrics, nil
}

func (s *Store) GetMetricsForLast7Days(ctx context.Context) ([]*Metrics, error) {
	return s.GetMetrics(ctx, 7*24)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}

func parseCount(v string) int64 {
	n, _ := strconv.ParseInt(v, 10, 64)
	return n
}

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"tracker-svr/internal/model"
)

const (
	DefaultLatestPrefix = "position:latest"
	DefaultLatestTTL    = 24 * time.Hour
)

// RedisLatest mantiene la última posición de cada dispositivo como JSON.
type RedisLatest struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisLatest(rdb *redis.Client, prefix string, ttl time.Duration) *RedisLatest {
	if ttl <= 0 {
		ttl = DefaultLatestTTL
	}
	return &RedisLatest{rdb: rdb, prefix: firstNonEmpty(prefix, DefaultLatestPrefix), ttl: ttl}
}

func (r *RedisLatest) key(deviceID int64) string {
	return r.prefix + ":" + strconv.FormatInt(deviceID, 10)
}

type latestRecord struct {
	model.Position
	IMEI       string `json:"imei"`
	ExternalID string `json:"external_id,omitempty"`
}

func (r *RedisLatest) Save(ctx context.Context, p model.Position, dev model.Device) error {
	b, err := json.Marshal(latestRecord{Position: p, IMEI: dev.IMEI, ExternalID: dev.ExternalID})
	if err != nil {
		return err
	}
	if err := r.rdb.Set(ctx, r.key(p.DeviceID), b, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis SET %s: %w", r.key(p.DeviceID), err)
	}
	return nil
}

func firstNonEmpty(s, def string) string {
	if strings.TrimSpace(s) != "" {
		return s
	}
	return def
}

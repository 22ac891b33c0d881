package devices

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"tracker-svr/internal/model"
)

const (
	DefaultRedisKey          = "devices"
	DefaultInvalidateChannel = "devices:invalidate"
)

/* =======================================================================
                          DIRECTORIO EN REDIS
   Hash <key>: campo = imei, valor = JSON del dispositivo
======================================================================= */

type RedisDirectory struct {
	rdb     *redis.Client
	key     string
	timeout time.Duration
	logger  *slog.Logger
}

func NewRedisDirectory(rdb *redis.Client, key string, lg *slog.Logger) *RedisDirectory {
	return &RedisDirectory{
		rdb:     rdb,
		key:     firstNonEmpty(key, DefaultRedisKey),
		timeout: 5 * time.Second,
		logger:  lg.With("component", "devices.redis"),
	}
}

func (d *RedisDirectory) Devices(ctx context.Context) ([]model.Device, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	raw, err := d.rdb.HGetAll(ctx, d.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis HGETALL %s: %w", d.key, err)
	}
	list, skipped := decodeDevices(raw)
	for field, reason := range skipped {
		d.logger.Warn("skipping device entry", "key", d.key, "field", field, "reason", reason)
	}
	return list, nil
}

// decodeDevices parsea las entradas del hash. Las inválidas se omiten y se reportan.
func decodeDevices(raw map[string]string) ([]model.Device, map[string]string) {
	list := make([]model.Device, 0, len(raw))
	skipped := map[string]string{}
	for field, value := range raw {
		var dev model.Device
		if err := json.Unmarshal([]byte(value), &dev); err != nil {
			skipped[field] = err.Error()
			continue
		}
		if dev.IMEI == "" {
			dev.IMEI = field
		}
		if dev.ID == 0 {
			skipped[field] = "missing id"
			continue
		}
		list = append(list, dev)
	}
	return list, skipped
}

/* =======================================================================
                        INVALIDACIÓN POR PUB/SUB
======================================================================= */

// RedisInvalidator avanza la generación del cache ante cualquier mensaje del canal.
type RedisInvalidator struct {
	rdb     *redis.Client
	channel string
	gen     *Generation
	logger  *slog.Logger
	now     func() time.Time
}

func NewRedisInvalidator(rdb *redis.Client, channel string, gen *Generation, lg *slog.Logger) *RedisInvalidator {
	return &RedisInvalidator{
		rdb:     rdb,
		channel: firstNonEmpty(channel, DefaultInvalidateChannel),
		gen:     gen,
		logger:  lg.With("component", "devices.invalidator"),
		now:     time.Now,
	}
}

// Run escucha hasta que ctx se cancele.
func (i *RedisInvalidator) Run(ctx context.Context) error {
	pubsub := i.rdb.Subscribe(ctx, i.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis SUBSCRIBE %s: %w", i.channel, err)
	}
	i.logger.Info("listening for device invalidations", "channel", i.channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			i.handle(strings.TrimSpace(msg.Payload))
		}
	}
}

func (i *RedisInvalidator) handle(payload string) {
	i.gen.Bump(i.now())
	i.logger.Info("device cache invalidated", "payload", payload)
}

func firstNonEmpty(s, def string) string {
	if strings.TrimSpace(s) != "" {
		return s
	}
	return def
}

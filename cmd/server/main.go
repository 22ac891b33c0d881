package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/redis/go-redis/v9"

	"tracker-svr/internal/codec/tk103"
	"tracker-svr/internal/config"
	"tracker-svr/internal/devices"
	"tracker-svr/internal/dispatcher"
	"tracker-svr/internal/filter"
	"tracker-svr/internal/grpcclient"
	"tracker-svr/internal/link"
	"tracker-svr/internal/notify"
	"tracker-svr/internal/observability"
	"tracker-svr/internal/pipeline"
	"tracker-svr/internal/server"
	"tracker-svr/internal/store"
	"tracker-svr/internal/utilities"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "ruta al archivo YAML de configuración")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		observability.NewLogger("info", "json").Error("config load failed", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting tracker-svr...", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var background sync.WaitGroup
	goRun := func(fn func()) {
		background.Add(1)
		go func() {
			defer background.Done()
			fn()
		}()
	}

	// Directorio de dispositivos: Redis (con invalidación por pub/sub) o lista estática
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Error("Redis ping failed", "addr", cfg.Redis.Addr, "error", err)
			os.Exit(1)
		}
	}

	var directory devices.Directory = devices.StaticDirectory(cfg.Devices.Static)
	generation := &devices.Generation{}
	if rdb != nil && !cfg.StaticDevices() {
		directory = devices.NewRedisDirectory(rdb, cfg.Devices.RedisKey, logger)
		invalidator := devices.NewRedisInvalidator(rdb, cfg.Devices.InvalidateChannel, generation, logger)
		goRun(func() {
			if err := invalidator.Run(ctx); err != nil {
				logger.Error("device invalidation listener stopped", "error", err)
			}
		})
	}
	resolver := devices.NewResolver(directory, generation, logger, devices.WithTTL(cfg.Devices.Refresh))
	if err := resolver.Reload(ctx); err != nil {
		logger.Warn("initial device load failed, will retry on demand", "error", err)
	}

	engine := filter.New(filter.Config{
		Invalid:   cfg.Filter.Invalid,
		Zero:      cfg.Filter.Zero,
		Duplicate: cfg.Filter.Duplicate,
		Distance:  cfg.Filter.Distance,
		Limit:     cfg.Filter.Limit,
	}, logger)

	// Sinks
	var sinks []dispatcher.Sink
	var linkClient *link.Client

	// historial en InfluxDB y última posición en Redis; cada uno es opcional
	var history store.History
	var latest store.Latest
	if cfg.Influx.URL != "" {
		influx := store.NewInflux(store.InfluxConfig{
			URL:         cfg.Influx.URL,
			Token:       cfg.Influx.Token,
			Org:         cfg.Influx.Org,
			Bucket:      cfg.Influx.Bucket,
			Measurement: cfg.Influx.Measurement,
		})
		defer influx.Close()
		history = influx
	}
	if rdb != nil {
		latest = store.NewRedisLatest(rdb, cfg.Redis.LatestPrefix, cfg.Redis.LatestTTL)
	}
	if history != nil || latest != nil {
		sinks = append(sinks, store.NewSink(history, latest, engine))
	}
	if len(cfg.Kafka.Brokers) > 0 {
		k := notify.NewKafka(notify.KafkaConfig{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic})
		defer k.Close()
		sinks = append(sinks, k)
	}
	if cfg.MQTT.BrokerURL != "" {
		m := notify.NewMQTT(notify.MQTTConfig{
			BrokerURL:   cfg.MQTT.BrokerURL,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         cfg.MQTT.QoS,
		}, logger)
		goRun(func() {
			if err := m.Connect(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("mqtt connect failed", "error", err)
			}
		})
		defer m.Close()
		sinks = append(sinks, m)
	}
	if cfg.Forwarder.Addr != "" {
		fw, err := grpcclient.NewGRPCClient(cfg.Forwarder.Addr)
		if err != nil {
			logger.Error("gRPC forwarder init failed", "addr", cfg.Forwarder.Addr, "error", err)
			os.Exit(1)
		}
		defer fw.Close()
		sinks = append(sinks, fw)
	}
	if cfg.Link.Addr != "" {
		linkClient = link.NewClient(cfg.Link.Addr, logger)
		goRun(func() { linkClient.Run(ctx) })
		sinks = append(sinks, linkClient)
	} else {
		logger.Info("link: disabled (no proxy address configured)")
	}

	disp := dispatcher.New(logger, cfg.Dispatch.QueueSize, sinks...)
	disp.Start(ctx)

	decoder := tk103.New(resolver, engine, logger)
	var opts []pipeline.Option
	if linkClient != nil {
		opts = append(opts, pipeline.WithSessionObserver(linkClient))
	}
	processor := pipeline.New(decoder, resolver, engine, disp, logger, opts...)

	if cfg.Server.MetricsAddr != "" {
		goRun(func() {
			if err := observability.StartMetricsServer(ctx, cfg.Server.MetricsAddr); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		})
	}

	srv := server.New(cfg.Server.Addr, processor, utilities.NewRawLog(cfg.RawLog.Dir), cfg.Server.IdleTimeout, logger)
	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Error("TCP server failed", "error", err)
		stop()
	}

	// el servidor ya no produce entregas: vaciar colas y esperar al resto
	disp.Close()
	stop()
	background.Wait()
	logger.Info("tracker-svr stopped")
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"tracker-svr/internal/model"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Filter    FilterConfig    `yaml:"filter"`
	Devices   DevicesConfig   `yaml:"devices"`
	Redis     RedisConfig     `yaml:"redis"`
	Influx    InfluxConfig    `yaml:"influx"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Forwarder ForwarderConfig `yaml:"forwarder"`
	Link      LinkConfig      `yaml:"link"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	RawLog    RawLogConfig    `yaml:"rawlog"`
}

type ServerConfig struct {
	Addr        string        `yaml:"addr"`
	MetricsAddr string        `yaml:"metrics_addr"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type FilterConfig struct {
	Invalid   bool          `yaml:"invalid"`
	Zero      bool          `yaml:"zero"`
	Duplicate bool          `yaml:"duplicate"`
	Distance  float64       `yaml:"distance"` // metros
	Limit     time.Duration `yaml:"limit"`
}

type DevicesConfig struct {
	Refresh           time.Duration  `yaml:"refresh"`
	RedisKey          string         `yaml:"redis_key"`
	InvalidateChannel string         `yaml:"invalidate_channel"`
	Static            []model.Device `yaml:"static"`
}

// Los colaboradores externos se habilitan con su dirección; vacía = deshabilitado.

type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	LatestPrefix string        `yaml:"latest_prefix"`
	LatestTTL    time.Duration `yaml:"latest_ttl"`
}

type InfluxConfig struct {
	URL         string `yaml:"url"`
	Token       string `yaml:"token"`
	Org         string `yaml:"org"`
	Bucket      string `yaml:"bucket"`
	Measurement string `yaml:"measurement"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type MQTTConfig struct {
	BrokerURL   string `yaml:"broker_url"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

type ForwarderConfig struct {
	Addr string `yaml:"addr"`
}

type LinkConfig struct {
	Addr string `yaml:"addr"`
}

type DispatchConfig struct {
	QueueSize int `yaml:"queue_size"`
}

type RawLogConfig struct {
	Dir string `yaml:"dir"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:        ":8001",
			MetricsAddr: ":9000",
			IdleTimeout: 10 * time.Minute,
		},
		Log:      LogConfig{Level: "info", Format: "json"},
		Devices:  DevicesConfig{Refresh: 300 * time.Second},
		Kafka:    KafkaConfig{Topic: "positions"},
		MQTT:     MQTTConfig{ClientID: "tracker-svr"},
		Dispatch: DispatchConfig{QueueSize: 1024},
	}
}

// StaticDevices indica si el directorio de dispositivos es la lista estática.
// Una lista explícita tiene prioridad sobre Redis, que sigue guardando la
// última posición si redis.addr está configurado.
func (cfg Config) StaticDevices() bool { return len(cfg.Devices.Static) > 0 }

// Load lee el YAML (si path no es vacío) sobre los defaults y aplica las
// variables de entorno encima.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Addr = getEnv("TCP_ADDR", cfg.Server.Addr)
	cfg.Server.MetricsAddr = getEnv("METRICS_ADDR", cfg.Server.MetricsAddr)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)
	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Influx.URL = getEnv("INFLUX_URL", cfg.Influx.URL)
	cfg.Influx.Token = getEnv("INFLUX_TOKEN", cfg.Influx.Token)
	cfg.Kafka.Brokers = getEnvList("KAFKA_BROKERS", cfg.Kafka.Brokers)
	cfg.MQTT.BrokerURL = getEnv("MQTT_BROKER_URL", cfg.MQTT.BrokerURL)
	cfg.Forwarder.Addr = getEnv("GRPC_SERVER", cfg.Forwarder.Addr)
	cfg.Link.Addr = getEnv("PROXY_ADDR", cfg.Link.Addr)
}

func (cfg *Config) validate() error {
	if cfg.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if cfg.Server.IdleTimeout <= 0 {
		cfg.Server.IdleTimeout = 10 * time.Minute
	}
	if cfg.Filter.Distance < 0 {
		return fmt.Errorf("filter.distance must be >= 0")
	}
	if cfg.Filter.Limit < 0 {
		return fmt.Errorf("filter.limit must be >= 0")
	}
	if cfg.Devices.Refresh <= 0 {
		cfg.Devices.Refresh = 300 * time.Second
	}
	if cfg.Redis.Addr == "" && len(cfg.Devices.Static) == 0 {
		return fmt.Errorf("devices: redis.addr or devices.static is required")
	}
	for i, d := range cfg.Devices.Static {
		if d.ID == 0 || d.IMEI == "" {
			return fmt.Errorf("devices.static[%d]: id and imei are required", i)
		}
	}
	if cfg.Influx.URL != "" && (cfg.Influx.Org == "" || cfg.Influx.Bucket == "") {
		return fmt.Errorf("influx.org and influx.bucket are required when influx.url is set")
	}
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.Topic == "" {
		return fmt.Errorf("kafka.topic is required when kafka.brokers is set")
	}
	if cfg.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}
	if cfg.Dispatch.QueueSize <= 0 {
		cfg.Dispatch.QueueSize = 1024
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, s := range strings.Split(val, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// String resume la configuración efectiva sin secretos (para el log de arranque).
func (cfg Config) String() string {
	enabled := func(s string) string {
		if s == "" {
			return "off"
		}
		return s
	}
	return "tcp=" + cfg.Server.Addr +
		" metrics=" + enabled(cfg.Server.MetricsAddr) +
		" redis=" + enabled(cfg.Redis.Addr) +
		" influx=" + enabled(cfg.Influx.URL) +
		" kafka=" + enabled(strings.Join(cfg.Kafka.Brokers, ",")) +
		" mqtt=" + enabled(cfg.MQTT.BrokerURL) +
		" forwarder=" + enabled(cfg.Forwarder.Addr) +
		" link=" + enabled(cfg.Link.Addr) +
		" queue=" + strconv.Itoa(cfg.Dispatch.QueueSize)
}

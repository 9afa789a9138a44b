package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config aggregates application configuration. Values come from the optional CONFIG_FILE
// first and environment variables override them.
type Config struct {
	Env         string
	HTTPAddr    string
	LogFile     string
	CORSOrigins []string

	GatewayMode      string
	PlatformBaseURL  string
	PlatformToken    string
	PlatformCurrency string
	PlatformTimeout  time.Duration
	PlatformRPS      float64
	PlatformBurst    int
	PlatformRetries  int
	EditorRoles      []string
	BufferDays       int
	FetchConcurrency int

	UnblockSettleDelay time.Duration
	SessionIdleTTL     time.Duration
	SessionSweepCron   string

	MongoURI string
	MongoDB  string

	KafkaBrokers       []string
	KafkaTopicPrefix   string
	KafkaGroupID       string
	PlatformTopic      string
	OutboxPollInterval time.Duration
	RetryBackoff       []time.Duration

	FeedCron       string
	FeedProperties []string
	FeedDays       int
	FeedSink       string
	FeedDir        string

	S3Endpoint       string
	S3PublicEndpoint string
	S3AccessKey      string
	S3SecretKey      string
	S3Bucket         string
	S3UseSSL         bool
}

// Load reads CONFIG_FILE (if set) and the environment.
func Load() (Config, error) {
	src, err := newSource(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return Config{}, err
	}
	return load(src)
}

func load(src source) (Config, error) {
	cfg := Config{
		Env:              src.getEnv("APP_ENV", "dev"),
		HTTPAddr:         src.getEnv("HTTP_ADDR", ":8080"),
		LogFile:          src.getEnv("LOG_FILE", ""),
		CORSOrigins:      src.getList("CORS_ORIGINS", "http://localhost:5173"),
		GatewayMode:      strings.ToLower(src.getEnv("GATEWAY_MODE", "memory")),
		PlatformBaseURL:  strings.TrimRight(src.getEnv("PLATFORM_BASE_URL", ""), "/"),
		PlatformToken:    src.getEnv("PLATFORM_TOKEN", ""),
		PlatformCurrency: strings.ToUpper(src.getEnv("PLATFORM_CURRENCY", "EUR")),
		EditorRoles:      src.getList("EDITOR_ROLES", "admin,owner,manager"),
		SessionSweepCron: src.getEnv("SESSION_SWEEP_CRON", "@every 1m"),
		MongoURI:         src.getEnv("MONGO_URI", ""),
		MongoDB:          src.getEnv("MONGO_DB", "hostboard"),
		KafkaBrokers:     src.getList("KAFKA_BROKERS", ""),
		KafkaTopicPrefix: src.getEnv("KAFKA_TOPIC_PREFIX", ""),
		KafkaGroupID:     src.getEnv("KAFKA_GROUP_ID", "hostboard"),
		PlatformTopic:    src.getEnv("PLATFORM_TOPIC", ""),
		FeedCron:         src.getEnv("FEED_CRON", ""),
		FeedProperties:   src.getList("FEED_PROPERTIES", ""),
		FeedSink:         strings.ToLower(src.getEnv("FEED_SINK", "")),
		FeedDir:          src.getEnv("FEED_DIR", "feeds"),
		S3Endpoint:       src.getEnv("S3_ENDPOINT", "http://localhost:9000"),
		S3PublicEndpoint: src.getEnv("S3_PUBLIC_ENDPOINT", ""),
		S3AccessKey:      src.getEnv("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:      src.getEnv("S3_SECRET_KEY", "minioadmin"),
		S3Bucket:         src.getEnv("S3_BUCKET", "hostboard-feeds"),
	}

	var errs []error
	durations := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"PLATFORM_TIMEOUT", 10 * time.Second, &cfg.PlatformTimeout},
		{"UNBLOCK_SETTLE_DELAY", 1500 * time.Millisecond, &cfg.UnblockSettleDelay},
		{"SESSION_IDLE_TTL", 30 * time.Minute, &cfg.SessionIdleTTL},
		{"OUTBOX_POLL_INTERVAL", 500 * time.Millisecond, &cfg.OutboxPollInterval},
	}
	for _, d := range durations {
		v, err := src.parseDurationEnv(d.key, d.def)
		errs = append(errs, err)
		*d.dst = v
	}
	ints := []struct {
		key string
		def int
		dst *int
	}{
		{"PLATFORM_BURST", 5, &cfg.PlatformBurst},
		{"PLATFORM_RETRIES", 3, &cfg.PlatformRetries},
		{"BUFFER_DAYS", 7, &cfg.BufferDays},
		{"FETCH_CONCURRENCY", 4, &cfg.FetchConcurrency},
		{"FEED_DAYS", 365, &cfg.FeedDays},
	}
	for _, i := range ints {
		v, err := src.parseIntEnv(i.key, i.def)
		errs = append(errs, err)
		*i.dst = v
	}
	rps, err := src.parseFloatEnv("PLATFORM_RPS", 5)
	errs = append(errs, err)
	cfg.PlatformRPS = rps
	useSSL, err := src.parseBoolEnv("S3_USE_SSL", false)
	errs = append(errs, err)
	cfg.S3UseSSL = useSSL

	for _, raw := range src.getList("RETRY_BACKOFF", "1s,5s,30s") {
		d, err := time.ParseDuration(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid RETRY_BACKOFF component %q: %w", raw, err))
			continue
		}
		cfg.RetryBackoff = append(cfg.RetryBackoff, d)
	}
	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}

	if cfg.S3PublicEndpoint == "" {
		cfg.S3PublicEndpoint = cfg.S3Endpoint
	}
	switch cfg.GatewayMode {
	case "memory":
	case "http":
		if cfg.PlatformBaseURL == "" {
			return Config{}, fmt.Errorf("PLATFORM_BASE_URL is required when GATEWAY_MODE=http")
		}
	default:
		return Config{}, fmt.Errorf("unsupported GATEWAY_MODE %q", cfg.GatewayMode)
	}
	switch cfg.FeedSink {
	case "", "file", "s3":
	default:
		return Config{}, fmt.Errorf("unsupported FEED_SINK %q", cfg.FeedSink)
	}
	if cfg.PlatformTopic != "" && len(cfg.KafkaBrokers) == 0 {
		return Config{}, fmt.Errorf("KAFKA_BROKERS is required when PLATFORM_TOPIC is set")
	}
	return cfg, nil
}

// IsDev reports whether human-readable logs and permissive defaults apply.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.Env) {
	case "dev", "local", "development":
		return true
	default:
		return false
	}
}

// source resolves a key from the environment first and the config file second.
type source struct {
	file    map[string]string
	lookupE func(string) (string, bool)
}

func newSource(path string) (source, error) {
	src := source{file: map[string]string{}, lookupE: os.LookupEnv}
	if path == "" {
		return src, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return source{}, fmt.Errorf("read config file: %w", err)
	}
	values, err := parseFile(data)
	if err != nil {
		return source{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	src.file = values
	return src, nil
}

// parseFile flattens a YAML document of scalars and scalar lists. Keys are matched
// case-insensitively against environment variable names.
func parseFile(data []byte) (map[string]string, error) {
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		key := strings.ToUpper(strings.TrimSpace(k))
		switch val := v.(type) {
		case nil:
		case []any:
			parts := make([]string, 0, len(val))
			for _, item := range val {
				parts = append(parts, fmt.Sprint(item))
			}
			out[key] = strings.Join(parts, ",")
		case map[string]any:
			return nil, fmt.Errorf("key %q: nested sections are not supported", k)
		default:
			out[key] = fmt.Sprint(val)
		}
	}
	return out, nil
}

func (s source) lookup(key string) (string, bool) {
	if s.lookupE != nil {
		if v, ok := s.lookupE(key); ok && v != "" {
			return v, true
		}
	}
	v, ok := s.file[key]
	return v, ok && v != ""
}

func (s source) getEnv(key, def string) string {
	if v, ok := s.lookup(key); ok {
		return v
	}
	return def
}

func (s source) getList(key, def string) []string {
	var out []string
	for _, raw := range strings.Split(s.getEnv(key, def), ",") {
		if v := strings.TrimSpace(raw); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (s source) parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw, ok := s.lookup(key)
	if !ok {
		return def, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return def, fmt.Errorf("invalid %s duration: %w", key, err)
	}
	return d, nil
}

func (s source) parseIntEnv(key string, def int) (int, error) {
	raw, ok := s.lookup(key)
	if !ok {
		return def, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return def, fmt.Errorf("invalid %s integer: %w", key, err)
	}
	return v, nil
}

func (s source) parseFloatEnv(key string, def float64) (float64, error) {
	raw, ok := s.lookup(key)
	if !ok {
		return def, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return def, fmt.Errorf("invalid %s number: %w", key, err)
	}
	return v, nil
}

func (s source) parseBoolEnv(key string, def bool) (bool, error) {
	raw, ok := s.lookup(key)
	if !ok {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "yes", "y", "on":
		return true, nil
	case "0", "f", "false", "no", "n", "off":
		return false, nil
	default:
		return def, fmt.Errorf("invalid %s boolean: %q", key, raw)
	}
}

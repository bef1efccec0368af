package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

func getEnv(key, defaultValue string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	return value
}

func loadEnvString(key string, result *string) {
	s, ok := os.LookupEnv(key)

	if !ok {
		return
	}
	*result = s
}

func loadEnvUint(key string, result *uint) {
	s, ok := os.LookupEnv(key)

	if !ok {
		return
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return
	}
	*result = uint(n)
}

func loadEnvInt(key string, result *int) {
	s, ok := os.LookupEnv(key)

	if !ok {
		return
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return
	}
	*result = n
}

func loadEnvBool(key string, result *bool) {
	s, ok := os.LookupEnv(key)

	if !ok {
		return
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return
	}
	*result = b
}

// loadEnvDuration accepts Go duration strings ("10s", "5m"); a bare integer is read as milliseconds.
func loadEnvDuration(key string, result *time.Duration) {
	s, ok := os.LookupEnv(key)

	if !ok {
		return
	}
	if d, err := time.ParseDuration(s); err == nil {
		*result = d
		return
	}
	if n, err := strconv.Atoi(s); err == nil {
		*result = time.Duration(n) * time.Millisecond
	}
}

/* PgSQL Configuration */
type pgSqlConfig struct {
	Host     string `json:"host"`
	Port     uint   `json:"port"`
	Database string `json:"database"`
	SslMode  string `json:"ssl_mode"`
	User     string `json:"user"`
	Password string `json:"password"`
}

func (p pgSqlConfig) ConnStr() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s database=%s sslmode=%s", p.Host, p.Port, p.User, p.Password, p.Database, p.SslMode)
}

// Enabled reports whether a database host was configured.
func (p pgSqlConfig) Enabled() bool {
	return p.Host != ""
}

func defaultPgSql() pgSqlConfig {
	return pgSqlConfig{
		Host:     "",
		Port:     5432,
		Database: "crawler",
		User:     "",
		Password: "",
		SslMode:  "disable",
	}
}

func (p *pgSqlConfig) loadFromEnv() {
	loadEnvString("POSTGRES_HOST", &p.Host)
	loadEnvUint("POSTGRES_PORT", &p.Port)
	loadEnvString("POSTGRES_DB_NAME", &p.Database)
	loadEnvString("POSTGRES_SSLMODE", &p.SslMode)
	loadEnvString("POSTGRES_USERNAME", &p.User)
	loadEnvString("POSTGRES_PASSWORD", &p.Password)
}

/* Listen Configuration */

type listenConfig struct {
	Host string `json:"host"`
	Port uint   `json:"port"`
}

func (l listenConfig) Addr() string {
	return fmt.Sprintf("%s:%d", l.Host, l.Port)
}

func defaultListenConfig() listenConfig {
	return listenConfig{
		Host: "0.0.0.0",
		Port: 5000,
	}
}

func (l *listenConfig) loadFromEnv() {
	loadEnvString("LISTEN_HOST", &l.Host)
	loadEnvUint("PORT", &l.Port)
	loadEnvUint("LISTEN_PORT", &l.Port)
}

/* NATS Configuration */

type natsConfig struct {
	// URL overrides Host and Port when set.
	RawURL   string
	Host     string
	Port     uint
	Username string
	Password string
	// ConnectTimeout bounds a single dial attempt.
	ConnectTimeout time.Duration
	// MaxBackoff caps the delay between connection attempts.
	MaxBackoff time.Duration
}

func (c *natsConfig) loadFromEnv() {
	loadEnvString("NATS_URL", &c.RawURL)
	c.Host = getEnv("NATS_HOST", c.Host)
	loadEnvUint("NATS_PORT", &c.Port)
	c.Username = getEnv("NATS_USER", c.Username)
	c.Password = getEnv("NATS_PASSWORD", c.Password)
	loadEnvDuration("NATS_CONNECT_TIMEOUT", &c.ConnectTimeout)
	loadEnvDuration("NATS_MAX_BACKOFF", &c.MaxBackoff)
}

func (c *natsConfig) URL() string {
	if c.RawURL != "" {
		return c.RawURL
	}
	return fmt.Sprintf("nats://%s:%d", c.Host, c.Port)
}

func defaultNatsConfig() natsConfig {
	return natsConfig{
		Host:           "localhost",
		Port:           4222,
		Username:       "",
		Password:       "",
		ConnectTimeout: 5 * time.Second,
		MaxBackoff:     30 * time.Second,
	}
}

/* Queue Configuration */

type queueConfig struct {
	// Prefetch is the number of unacknowledged jobs a worker holds at once.
	Prefetch       int
	MessageTTL     time.Duration
	MaxLength      int64
	MaxDeliver     int
	// MaxAckPending caps unacknowledged jobs across every worker process
	// sharing the durable consumer.
	MaxAckPending  int
	AckWait        time.Duration
	ResultTTL      time.Duration
	ResultMaxLen   int64
	CollectTimeout time.Duration
	BatchSize      int
	BatchDelay     time.Duration
}

func (q *queueConfig) loadFromEnv() {
	loadEnvInt("QUEUE_PREFETCH", &q.Prefetch)
	loadEnvDuration("QUEUE_MESSAGE_TTL", &q.MessageTTL)
	if s, ok := os.LookupEnv("QUEUE_MAX_LENGTH"); ok {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			q.MaxLength = n
		}
	}
	loadEnvInt("QUEUE_MAX_DELIVER", &q.MaxDeliver)
	loadEnvInt("QUEUE_MAX_ACK_PENDING", &q.MaxAckPending)
	loadEnvDuration("QUEUE_ACK_WAIT", &q.AckWait)
	loadEnvDuration("RESULT_TTL", &q.ResultTTL)
	if s, ok := os.LookupEnv("RESULT_MAX_LENGTH"); ok {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			q.ResultMaxLen = n
		}
	}
	loadEnvDuration("COLLECT_TIMEOUT", &q.CollectTimeout)
	loadEnvInt("DISPATCH_BATCH_SIZE", &q.BatchSize)
	loadEnvDuration("DISPATCH_BATCH_DELAY", &q.BatchDelay)
}

func defaultQueueConfig() queueConfig {
	return queueConfig{
		Prefetch:       20,
		MessageTTL:     24 * time.Hour,
		MaxLength:      1_000_000,
		MaxDeliver:     3,
		MaxAckPending:  1000,
		AckWait:        5 * time.Minute,
		ResultTTL:      10 * time.Minute,
		ResultMaxLen:   10_000,
		CollectTimeout: 5 * time.Minute,
		BatchSize:      100,
		BatchDelay:     10 * time.Millisecond,
	}
}

/* Crawl Configuration */

type crawlConfig struct {
	FetchTimeout     time.Duration
	MaxRedirects     int
	UserAgent        string
	Concurrency      int
	MaxInternalLinks int
	BusinessMode     bool
	// FetchMode is either "http" or "browser".
	FetchMode string
	// BrowserURL is the DevTools URL of a running browser; empty launches one.
	BrowserURL string
}

func (c *crawlConfig) loadFromEnv() {
	loadEnvDuration("FETCH_TIMEOUT", &c.FetchTimeout)
	loadEnvInt("FETCH_MAX_REDIRECTS", &c.MaxRedirects)
	loadEnvString("FETCH_USER_AGENT", &c.UserAgent)
	loadEnvInt("CRAWL_CONCURRENCY", &c.Concurrency)
	loadEnvInt("CRAWL_MAX_INTERNAL_LINKS", &c.MaxInternalLinks)
	loadEnvBool("CRAWL_BUSINESS_MODE", &c.BusinessMode)
	loadEnvString("FETCH_MODE", &c.FetchMode)
	loadEnvString("BROWSER_CONTROL_URL", &c.BrowserURL)
}

func defaultCrawlConfig() crawlConfig {
	return crawlConfig{
		FetchTimeout:     10 * time.Second,
		MaxRedirects:     3,
		UserAgent:        "Mozilla/5.0 (compatible; WebScraper/1.0)",
		Concurrency:      16,
		MaxInternalLinks: 200,
		BusinessMode:     false,
		FetchMode:        "http",
	}
}

/* Log Configuration */

type logConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	ToDatabase bool
}

func (l *logConfig) loadFromEnv() {
	loadEnvString("LOG_LEVEL", &l.Level)
	loadEnvString("LOG_FILE", &l.File)
	loadEnvInt("LOG_MAX_SIZE_MB", &l.MaxSizeMB)
	loadEnvInt("LOG_MAX_BACKUPS", &l.MaxBackups)
	loadEnvInt("LOG_MAX_AGE_DAYS", &l.MaxAgeDays)
	loadEnvBool("LOG_TO_DB", &l.ToDatabase)
}

func defaultLogConfig() logConfig {
	return logConfig{
		Level:      "info",
		File:       "",
		MaxSizeMB:  50,
		MaxBackups: 3,
		MaxAgeDays: 14,
		ToDatabase: false,
	}
}

type rateLimitConfig struct {
	RequestsPerMinute int
}

func (r *rateLimitConfig) loadFromEnv() {
	loadEnvInt("RATE_LIMIT_PER_MINUTE", &r.RequestsPerMinute)
}

func defaultRateLimitConfig() rateLimitConfig {
	return rateLimitConfig{
		RequestsPerMinute: 10000,
	}
}

type redisConfig struct {
	Host     string `json:"host"`
	Port     uint   `json:"port"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

// Enabled reports whether a Redis host was configured.
func (r redisConfig) Enabled() bool {
	return r.Host != ""
}

func (r *redisConfig) loadFromEnv() {
	loadEnvString("REDIS_HOST", &r.Host)
	loadEnvUint("REDIS_PORT", &r.Port)
	loadEnvString("REDIS_PASSWORD", &r.Password)

	// Load DB number with a default of 0
	if dbStr := getEnv("REDIS_DB", "0"); dbStr != "" {
		if db, err := strconv.Atoi(dbStr); err == nil {
			r.DB = db
		}
	}
	if r.Enabled() {
		log.Info().Interface("redis", r).Msg("Redis config loaded")
	}
}

func defaultRedisConfig() redisConfig {
	return redisConfig{
		Host:     "",
		Port:     6379,
		Password: "",
		DB:       0,
	}
}

type GCSConfig struct {
	ProjectID       string
	CredentialsFile string
	Bucket          string
}

// Enabled reports whether dead-letter archiving to GCS is configured.
func (g GCSConfig) Enabled() bool {
	return g.Bucket != ""
}

func (g *GCSConfig) loadFromEnv() {
	g.ProjectID = getEnv("GCS_PROJECT_ID", "")
	g.CredentialsFile = getEnv("GCS_CREDENTIALS_FILE", "")
	g.Bucket = getEnv("GCS_STORAGE_BUCKET", "")
}

func defaultGcsConfig() GCSConfig {
	return GCSConfig{
		ProjectID:       "",
		CredentialsFile: "",
		Bucket:          "",
	}
}

type Config struct {
	Listen    listenConfig
	PgSql     pgSqlConfig
	Nats      natsConfig
	Queue     queueConfig
	Crawl     crawlConfig
	Log       logConfig
	RateLimit rateLimitConfig
	Redis     redisConfig
	GCS       GCSConfig
}

func (c *Config) LoadFromEnv() {
	c.Listen.loadFromEnv()
	c.PgSql.loadFromEnv()
	c.Nats.loadFromEnv()
	c.Queue.loadFromEnv()
	c.Crawl.loadFromEnv()
	c.Log.loadFromEnv()
	c.RateLimit.loadFromEnv()
	c.Redis.loadFromEnv()
	c.GCS.loadFromEnv()
}

func DefaultConfig() Config {
	return Config{
		Listen:    defaultListenConfig(),
		PgSql:     defaultPgSql(),
		Nats:      defaultNatsConfig(),
		Queue:     defaultQueueConfig(),
		Crawl:     defaultCrawlConfig(),
		Log:       defaultLogConfig(),
		RateLimit: defaultRateLimitConfig(),
		Redis:     defaultRedisConfig(),
		GCS:       defaultGcsConfig(),
	}
}

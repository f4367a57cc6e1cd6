package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Ledger   LedgerConfig
	LogLevel string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Host        string
	Port        string
	User        string
	Password    string
	DBName      string
	SSLMode     string
	MaxConns    int32
	MinConns    int32
	AutoMigrate bool
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// LedgerConfig 入場、兌換、候位的業務參數
type LedgerConfig struct {
	UndoWindow         time.Duration
	NotifyExpiry       time.Duration
	TurnoverSampleSize int
	DefaultTurnover    time.Duration
	TurnoverStrategy   string // notify_latency | seat_interval
	EventBus           string // redis | kafka | memory
}

const (
	EventBusRedis  = "redis"
	EventBusKafka  = "kafka"
	EventBusMemory = "memory"

	TurnoverNotifyLatency = "notify_latency"
	TurnoverSeatInterval  = "seat_interval"
)

var AppConfig *Config

func LoadConfig() *Config {
	// .env 不存在時直接使用環境變數
	_ = godotenv.Load()

	AppConfig = &Config{
		Server:   GetServerConfig(),
		Database: GetDatabaseConfig(),
		Redis:    GetRedisConfig(),
		Kafka:    GetKafkaConfig(),
		Ledger:   GetLedgerConfig(),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return AppConfig
}

func LoadTestConfig() *Config {
	testConfig := &DatabaseConfig{
		Host:        "localhost",
		Port:        "5433", // 測試 DB 用 5433 port
		User:        "postgres",
		Password:    "postgres",
		DBName:      "test_db",
		SSLMode:     "disable",
		MaxConns:    10,
		MinConns:    1,
		AutoMigrate: true,
	}

	testRedisConfig := RedisConfig{
		Host:     "localhost",
		Port:     "6380", // 測試 Redis 用 6380 port
		Password: "",
		DB:       1,
	}

	return &Config{
		Server:   ServerConfig{Port: "8080", ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second},
		Database: *testConfig,
		Redis:    testRedisConfig,
		Kafka:    KafkaConfig{Brokers: []string{"localhost:9093"}, Topic: "venue-ledger-test", GroupID: "venue-ledger-test"},
		Ledger:   DefaultLedgerConfig(),
		LogLevel: "debug",
	}
}

func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		UndoWindow:         8 * time.Second,
		NotifyExpiry:       15 * time.Minute,
		TurnoverSampleSize: 20,
		DefaultTurnover:    15 * time.Minute,
		TurnoverStrategy:   TurnoverNotifyLatency,
		EventBus:           EventBusMemory,
	}
}

func GetServerConfig() ServerConfig {
	return ServerConfig{
		Port:         getEnv("PORT", "8080"),
		ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
		WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
	}
}

func GetDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Host:        getEnv("DB_HOST", "localhost"),
		Port:        getEnv("DB_PORT", "5432"),
		User:        getEnv("DB_USER", "postgres"),
		Password:    getEnv("DB_PASSWORD", "postgres"),
		DBName:      getEnv("DB_NAME", "postgres"),
		SSLMode:     getEnv("DB_SSL_MODE", "disable"),
		MaxConns:    int32(getEnvInt("DB_MAX_CONNS", 25)),
		MinConns:    int32(getEnvInt("DB_MIN_CONNS", 5)),
		AutoMigrate: getEnvBool("DB_AUTO_MIGRATE", true),
	}
}

func GetRedisConfig() RedisConfig {
	db, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		panic(err)
	}

	return RedisConfig{
		Host:     getEnv("REDIS_HOST", "localhost"),
		Port:     getEnv("REDIS_PORT", "6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       db,
	}
}

func GetKafkaConfig() KafkaConfig {
	return KafkaConfig{
		Brokers: strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
		Topic:   getEnv("KAFKA_TOPIC", "venue-ledger.events"),
		GroupID: getEnv("KAFKA_GROUP_ID", "venue-ledger-workers"),
	}
}

func GetLedgerConfig() LedgerConfig {
	def := DefaultLedgerConfig()
	return LedgerConfig{
		UndoWindow:         getEnvDuration("LEDGER_UNDO_WINDOW", def.UndoWindow),
		NotifyExpiry:       getEnvDuration("WAITLIST_NOTIFY_EXPIRY", def.NotifyExpiry),
		TurnoverSampleSize: getEnvInt("WAITLIST_TURNOVER_SAMPLES", def.TurnoverSampleSize),
		DefaultTurnover:    getEnvDuration("WAITLIST_DEFAULT_TURNOVER", def.DefaultTurnover),
		TurnoverStrategy:   getEnv("WAITLIST_TURNOVER_STRATEGY", def.TurnoverStrategy),
		EventBus:           getEnv("EVENT_BUS", EventBusRedis),
	}
}

// DSN pgx 連線字串
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s timezone=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode, "UTC",
	)
}

// MigrationURL golang-migrate 的 pgx5 driver 連線字串
func (c DatabaseConfig) MigrationURL() string {
	u := url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%s", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

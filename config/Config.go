package config

import (
	"time"

	"github.com/mohitkumar/mediaflow/analytics"
)

type StorageType string

type QueueType string

const STORAGE_TYPE_REDIS StorageType = "redis"
const STORAGE_TYPE_INMEM StorageType = "memory"
const STORAGE_TYPE_POSTGRES StorageType = "postgres"

const QUEUE_TYPE_REDIS QueueType = "redis"
const QUEUE_TYPE_INMEM QueueType = "memory"

type RetryPolicy string

const RETRY_POLICY_FIXED RetryPolicy = "FIXED"
const RETRY_POLICY_BACKOFF RetryPolicy = "BACKOFF"

type StatusScope string

const STATUS_SCOPE_PROJECT StatusScope = "project"
const STATUS_SCOPE_DRAFT StatusScope = "draft"

type Config struct {
	RedisConfig     RedisStorageConfig
	PostgresConfig  PostgresStorageConfig
	HttpPort        int
	GrpcPort        int
	StorageType     StorageType
	QueueType       QueueType
	LogLevel        string
	LogDevelopment  bool
	LedgerConfig    LedgerConfig
	DispatchConfig  DispatchConfig
	ExecutorConfig  ExecutorConfig
	EventConfig     EventConfig
	StatusScope     StatusScope
	ModulesFile     string
	AnalyticsConfig analytics.DataCollectorConfig
}

type RedisStorageConfig struct {
	Addrs          []string
	Namespace      string
	Password       string
	PartitionCount int
}

type PostgresStorageConfig struct {
	DSN      string
	MaxConns int32
}

type LedgerConfig struct {
	DefaultMaxRetries int
}

type DispatchConfig struct {
	Timeout           time.Duration
	RatePerSecond     float64
	Burst             int
	RetryPolicy       RetryPolicy
	RetryAfterSeconds int
	Capacity          int
}

type ExecutorConfig struct {
	Workers             int
	Capacity            int
	PollInterval        time.Duration
	JobTimeoutSeconds   int
	RegisterMockModules bool
}

type EventConfig struct {
	ChannelPrefix      string
	Source             string
	SubscriberCapacity int
	PublishToRedis     bool
}

func Default() Config {
	return Config{
		RedisConfig: RedisStorageConfig{
			Addrs:          []string{"localhost:6379"},
			Namespace:      "mediaflow",
			PartitionCount: 16,
		},
		HttpPort:    8080,
		GrpcPort:    8099,
		StorageType: STORAGE_TYPE_INMEM,
		QueueType:   QUEUE_TYPE_INMEM,
		LogLevel:    "info",
		LedgerConfig: LedgerConfig{
			DefaultMaxRetries: 3,
		},
		DispatchConfig: DispatchConfig{
			Timeout:           5 * time.Second,
			RatePerSecond:     0,
			Burst:             1,
			RetryPolicy:       RETRY_POLICY_BACKOFF,
			RetryAfterSeconds: 1,
			Capacity:          1024,
		},
		ExecutorConfig: ExecutorConfig{
			Workers:             4,
			Capacity:            512,
			PollInterval:        time.Second,
			JobTimeoutSeconds:   300,
			RegisterMockModules: true,
		},
		EventConfig: EventConfig{
			ChannelPrefix:      "media_creator",
			Source:             "media_creator_core",
			SubscriberCapacity: 256,
		},
		StatusScope: STATUS_SCOPE_PROJECT,
	}
}

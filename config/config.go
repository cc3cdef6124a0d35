package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Message store backends.
const (
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
	StoreMemory   = "memory"
)

// Presence backends.
const (
	PresenceMemory = "memory"
	PresenceRedis  = "redis"
)

// Event brokers.
const (
	BrokerNone     = "none"
	BrokerRabbitMQ = "rabbitmq"
	BrokerKafka    = "kafka"
)

var defaults = map[string]any{
	"SERVER_PORT":              "3000",
	"JWT_ACCESS_EXPIRE":        60,
	"POSTGRES_HOST":            "localhost",
	"POSTGRES_PORT":            "5432",
	"POSTGRES_USER":            "postgres",
	"POSTGRES_DB":              "messenger",
	"REDIS_HOST":               "localhost",
	"REDIS_PORT":               "6379",
	"REDIS_DB":                 "0,1",
	"MESSAGE_STORE":            StorePostgres,
	"MONGO_URI":                "mongodb://localhost:27017",
	"MONGO_DB":                 "messenger",
	"PRESENCE_BACKEND":         PresenceMemory,
	"EVENT_BROKER":             BrokerNone,
	"RABBITMQ_HOST":            "localhost",
	"RABBITMQ_PORT":            "5672",
	"RABBITMQ_USER":            "guest",
	"RABBITMQ_PASSWORD":        "guest",
	"RABBITMQ_QUEUE":           "messenger",
	"RABBITMQ_PUSH_QUEUE":      "push",
	"KAFKA_BROKERS":            "localhost:9092",
	"KAFKA_TOPIC":              "messenger.events",
	"KAFKA_PUSH_TOPIC":         "messenger.push",
	"KAFKA_GROUP_ID":           "messenger-core",
	"S3_REGION":                "us-east-1",
	"PUSH_API_URL":             "https://exp.host/--/api/v2/push/send",
	"PUSH_TIMEOUT":             10 * time.Second,
	"E2EE_REQUIRED":            false,
	"HEARTBEAT_INTERVAL":       5 * time.Minute,
	"HISTORY_DEFAULT_LIMIT":    50,
	"HISTORY_MAX_LIMIT":        100,
	"VOICE_MAX_BYTES":          10 << 20,
	"SOCKET_EVENTS_PER_SECOND": 20.0,
	"SOCKET_EVENT_BURST":       40,
	"LOG_DEV":                  false,
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	return v
}

type PostgresSettings struct {
	Host     string
	Port     string
	User     string
	Password string
	DB       string
}

func (p PostgresSettings) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		p.Host, p.Port, p.User, p.Password, p.DB)
}

type RedisSettings struct {
	Host     string
	Port     string
	Password string
	// DB holds the logical databases: the first serves presence, the last the socket adapter.
	DB []int
}

func (r RedisSettings) Addr() string { return r.Host + ":" + r.Port }

func (r RedisSettings) PresenceDB() int { return r.DB[0] }

func (r RedisSettings) AdapterDB() int { return r.DB[len(r.DB)-1] }

type MongoSettings struct {
	URI string
	DB  string
}

type RabbitMQSettings struct {
	Host      string
	Port      string
	User      string
	Password  string
	Queue     string
	PushQueue string
}

func (r RabbitMQSettings) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", r.User, r.Password, r.Host, r.Port)
}

type KafkaSettings struct {
	Brokers   []string
	Topic     string
	PushTopic string
	GroupID   string
}

type S3Settings struct {
	Bucket        string
	Region        string
	PublicBaseURL string
}

type PushSettings struct {
	APIURL      string
	AccessToken string
	Timeout     time.Duration
}

type SocketSettings struct {
	Heartbeat       time.Duration
	EventsPerSecond float64
	EventBurst      int
}

// Settings is the typed view over the environment, built once at startup.
type Settings struct {
	Port            string
	JWTAccessKey    string
	JWTAccessExpire time.Duration
	LogDev          bool

	MessageStore    string
	PresenceBackend string
	EventBroker     string

	Postgres PostgresSettings
	Redis    RedisSettings
	Mongo    MongoSettings
	RabbitMQ RabbitMQSettings
	Kafka    KafkaSettings
	S3       S3Settings
	Push     PushSettings
	Socket   SocketSettings

	E2EERequired        bool
	HistoryDefaultLimit int
	HistoryMaxLimit     int
	VoiceMaxBytes       int64
}

// Load reads .env (if present) and the process environment into Settings.
func Load() (*Settings, error) {
	_ = godotenv.Load()
	return load(newViper())
}

func load(v *viper.Viper) (*Settings, error) {
	redisDBs, err := intList(v.GetString("REDIS_DB"))
	if err != nil {
		return nil, fmt.Errorf("REDIS_DB: %w", err)
	}

	s := &Settings{
		Port:            v.GetString("SERVER_PORT"),
		JWTAccessKey:    v.GetString("JWT_ACCESS_KEY"),
		JWTAccessExpire: time.Duration(v.GetInt("JWT_ACCESS_EXPIRE")) * time.Minute,
		LogDev:          v.GetBool("LOG_DEV"),

		MessageStore:    strings.ToLower(v.GetString("MESSAGE_STORE")),
		PresenceBackend: strings.ToLower(v.GetString("PRESENCE_BACKEND")),
		EventBroker:     strings.ToLower(v.GetString("EVENT_BROKER")),

		Postgres: PostgresSettings{
			Host:     v.GetString("POSTGRES_HOST"),
			Port:     v.GetString("POSTGRES_PORT"),
			User:     v.GetString("POSTGRES_USER"),
			Password: v.GetString("POSTGRES_PASSWORD"),
			DB:       v.GetString("POSTGRES_DB"),
		},
		Redis: RedisSettings{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       redisDBs,
		},
		Mongo: MongoSettings{
			URI: v.GetString("MONGO_URI"),
			DB:  v.GetString("MONGO_DB"),
		},
		RabbitMQ: RabbitMQSettings{
			Host:      v.GetString("RABBITMQ_HOST"),
			Port:      v.GetString("RABBITMQ_PORT"),
			User:      v.GetString("RABBITMQ_USER"),
			Password:  v.GetString("RABBITMQ_PASSWORD"),
			Queue:     v.GetString("RABBITMQ_QUEUE"),
			PushQueue: v.GetString("RABBITMQ_PUSH_QUEUE"),
		},
		Kafka: KafkaSettings{
			Brokers:   stringList(v.GetString("KAFKA_BROKERS")),
			Topic:     v.GetString("KAFKA_TOPIC"),
			PushTopic: v.GetString("KAFKA_PUSH_TOPIC"),
			GroupID:   v.GetString("KAFKA_GROUP_ID"),
		},
		S3: S3Settings{
			Bucket:        v.GetString("S3_BUCKET"),
			Region:        v.GetString("S3_REGION"),
			PublicBaseURL: strings.TrimRight(v.GetString("S3_PUBLIC_BASE_URL"), "/"),
		},
		Push: PushSettings{
			APIURL:      v.GetString("PUSH_API_URL"),
			AccessToken: v.GetString("PUSH_ACCESS_TOKEN"),
			Timeout:     v.GetDuration("PUSH_TIMEOUT"),
		},
		Socket: SocketSettings{
			Heartbeat:       v.GetDuration("HEARTBEAT_INTERVAL"),
			EventsPerSecond: v.GetFloat64("SOCKET_EVENTS_PER_SECOND"),
			EventBurst:      v.GetInt("SOCKET_EVENT_BURST"),
		},

		E2EERequired:        v.GetBool("E2EE_REQUIRED"),
		HistoryDefaultLimit: v.GetInt("HISTORY_DEFAULT_LIMIT"),
		HistoryMaxLimit:     v.GetInt("HISTORY_MAX_LIMIT"),
		VoiceMaxBytes:       v.GetInt64("VOICE_MAX_BYTES"),
	}

	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) validate() error {
	if s.JWTAccessKey == "" {
		return errors.New("JWT_ACCESS_KEY missing")
	}
	if s.Port == "" {
		return errors.New("SERVER_PORT missing")
	}
	switch s.MessageStore {
	case StorePostgres, StoreMongo, StoreMemory:
	default:
		return fmt.Errorf("MESSAGE_STORE %q invalid (postgres, mongo or memory)", s.MessageStore)
	}
	switch s.PresenceBackend {
	case PresenceMemory, PresenceRedis:
	default:
		return fmt.Errorf("PRESENCE_BACKEND %q invalid (memory or redis)", s.PresenceBackend)
	}
	switch s.EventBroker {
	case BrokerNone, BrokerRabbitMQ, BrokerKafka:
	default:
		return fmt.Errorf("EVENT_BROKER %q invalid (none, rabbitmq or kafka)", s.EventBroker)
	}
	if len(s.Redis.DB) == 0 {
		return errors.New("REDIS_DB missing")
	}
	if s.EventBroker == BrokerKafka && len(s.Kafka.Brokers) == 0 {
		return errors.New("KAFKA_BROKERS missing")
	}
	if s.Socket.Heartbeat <= 0 {
		return errors.New("HEARTBEAT_INTERVAL must be positive")
	}
	if s.HistoryMaxLimit <= 0 || s.HistoryDefaultLimit <= 0 {
		return errors.New("HISTORY_MAX_LIMIT and HISTORY_DEFAULT_LIMIT must be positive")
	}
	if s.HistoryDefaultLimit > s.HistoryMaxLimit {
		s.HistoryDefaultLimit = s.HistoryMaxLimit
	}
	if s.VoiceMaxBytes <= 0 {
		return errors.New("VOICE_MAX_BYTES must be positive")
	}
	return nil
}

func stringList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func intList(raw string) ([]int, error) {
	var out []int
	for _, part := range stringList(raw) {
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", part)
		}
		out = append(out, n)
	}
	return out, nil
}

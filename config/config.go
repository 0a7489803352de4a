package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Broker and object storage backends.
const (
	BackendNone     = "none"
	BackendRabbitMQ = "rabbitmq"
	BackendPubSub   = "pubsub"
	BackendMinio    = "minio"
	BackendGCS      = "gcs"
)

type Config struct {
	ServerPort         int            `env:"SERVER_PORT" envDefault:"8080"`
	JWTSecret          string         `env:"JWT_SECRET"`
	TokenTTL           time.Duration  `env:"TOKEN_TTL" envDefault:"24h"`
	LogLevel           string         `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat          string         `env:"LOG_FORMAT" envDefault:"json"`
	StoreBackend       string         `env:"STORE_BACKEND" envDefault:"postgres"`
	MaxAttachmentBytes int64          `env:"MAX_ATTACHMENT_BYTES" envDefault:"26214400"`
	Database           DatabaseConfig `envPrefix:"DB_"`
	MQ                 MQConfig       `envPrefix:"MQ_"`
	Storage            StorageConfig  `envPrefix:"STORAGE_"`
	BootstrapAdmin     AdminConfig    `envPrefix:"BOOTSTRAP_ADMIN_"`
}

// AdminConfig names an Admin account created at startup when no account
// with that email exists. It is skipped when Email is empty.
type AdminConfig struct {
	Email    string `env:"EMAIL"`
	Password string `env:"PASSWORD"`
	Name     string `env:"NAME" envDefault:"Administrator"`
}

type DatabaseConfig struct {
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     int    `env:"PORT" envDefault:"5432"`
	User     string `env:"USER" envDefault:"stemreport"`
	Password string `env:"PASSWORD" envDefault:"password"`
	DBName   string `env:"NAME" envDefault:"stemreport_db"`
	UseSSL   bool   `env:"USE_SSL" envDefault:"false"`
}

type MQConfig struct {
	Backend  string         `env:"BACKEND" envDefault:"none"`
	Channel  string         `env:"CHANNEL" envDefault:"report-events"`
	RabbitMQ RabbitMQConfig `envPrefix:"RABBITMQ_"`
	PubSub   PubSubConfig   `envPrefix:"PUBSUB_"`
}

type RabbitMQConfig struct {
	URL             string `env:"URL"`
	QueueDurable    bool   `env:"QUEUE_DURABLE" envDefault:"true"`
	QueueAutoDelete bool   `env:"QUEUE_AUTO_DELETE" envDefault:"false"`
	PrefetchCount   int    `env:"PREFETCH_COUNT" envDefault:"10"`
}

type PubSubConfig struct {
	ProjectID          string `env:"PROJECT_ID"`
	CredentialsFile    string `env:"CREDENTIALS_FILE"`
	SubscriptionSuffix string `env:"SUBSCRIPTION_SUFFIX" envDefault:"-sub"`
}

type StorageConfig struct {
	Backend string      `env:"BACKEND" envDefault:"none"`
	Minio   MinioConfig `envPrefix:"MINIO_"`
	GCS     GCSConfig   `envPrefix:"GCS_"`
}

type MinioConfig struct {
	Endpoint  string `env:"ENDPOINT"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Bucket    string `env:"BUCKET" envDefault:"stemreport"`
	UseSSL    bool   `env:"USE_SSL" envDefault:"false"`
}

type GCSConfig struct {
	Bucket          string `env:"BUCKET"`
	ProjectID       string `env:"PROJECT_ID"`
	CredentialsFile string `env:"CREDENTIALS_FILE"`
}

// LoadConfig reads the configuration from the environment. In the dev
// environment a local .env file is loaded first.
func LoadConfig() Config {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	cfg, err := Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// Parse reads the configuration from the current environment.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DatabaseURL builds the postgres connection URL shared by the pool and
// the migrator.
func (c Config) DatabaseURL() string {
	sslmode := "disable"
	if c.Database.UseSSL {
		sslmode = "require"
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", c.Database.Host, c.Database.Port),
		User:   url.UserPassword(c.Database.User, c.Database.Password),
		Path:   c.Database.DBName,
	}
	q := u.Query()
	q.Set("sslmode", sslmode)
	u.RawQuery = q.Encode()
	return u.String()
}

package config

import (
	"errors"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port             string        `envconfig:"PORT" default:"3000"`
	APIPrefix        string        `envconfig:"API_URL" default:"/api/v1"`
	AWSRegion        string        `envconfig:"AWS_REGION" default:"ap-northeast-2"`
	TableName        string        `envconfig:"TABLE_NAME" default:"eshop"`
	DynamoDBEndpoint string        `envconfig:"DYNAMODB_ENDPOINT" default:""` // DynamoDB Local
	CreateTable      bool          `envconfig:"CREATE_TABLE" default:"false"`
	StoreMaxRetries  uint64        `envconfig:"STORE_MAX_RETRIES" default:"3"`
	KafkaBrokers     string        `envconfig:"KAFKA_BROKERS" default:""`
	KafkaTopic       string        `envconfig:"KAFKA_TOPIC" default:"order-events"`
	LogLevel         string        `envconfig:"LOG_LEVEL" default:"info"`
	Secret           string        `envconfig:"SECRET" required:"true"`
	TokenTTL         time.Duration `envconfig:"TOKEN_TTL" default:"24h"`
	BcryptCost       int           `envconfig:"BCRYPT_COST" default:"10"`
	EnforceAdmin     bool          `envconfig:"AUTH_ENFORCE_ADMIN" default:"false"`
	UploadDir        string        `envconfig:"UPLOAD_DIR" default:"public/uploads"`
	PublicBaseURL    string        `envconfig:"PUBLIC_BASE_URL" default:""`
	RequestTimeout   time.Duration `envconfig:"REQUEST_TIMEOUT" default:"10s"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings that would make the service unsafe to start.
func (c *Config) Validate() error {
	if len(c.Secret) < 16 {
		return errors.New("SECRET must be at least 16 characters")
	}
	if c.TokenTTL <= 0 {
		return errors.New("TOKEN_TTL must be positive")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("REQUEST_TIMEOUT must be positive")
	}
	return nil
}

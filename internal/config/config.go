package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const EnvPrefix = "CART"

type Config struct {
	App      AppConfig
	MySQL    MySQLConfig
	Redis    RedisConfig
	Neo4j    Neo4jConfig
	Checkout CheckoutConfig
}

type AppConfig struct {
	Env          string        `envconfig:"CART_APP_ENV" default:"dev"`
	HTTPAddr     string        `envconfig:"CART_HTTP_ADDR" default:":8080"`
	GRPCAddr     string        `envconfig:"CART_GRPC_ADDR" default:":50051"`
	LogLevel     string        `envconfig:"CART_LOG_LEVEL" default:"info"`
	LogFormat    string        `envconfig:"CART_LOG_FORMAT" default:"json"`
	StoreTimeout time.Duration `envconfig:"CART_STORE_TIMEOUT" default:"3s"`
	ReadRetries  int           `envconfig:"CART_READ_RETRIES" default:"3"`
	RetryDelay   time.Duration `envconfig:"CART_RETRY_DELAY" default:"50ms"`
	ShutdownWait time.Duration `envconfig:"CART_SHUTDOWN_WAIT" default:"5s"`
}

type MySQLConfig struct {
	DSN             string        `envconfig:"CART_MYSQL_DSN" default:"root:root@tcp(localhost:3306)/shop?parseTime=true"`
	MaxOpenConns    int           `envconfig:"CART_MYSQL_MAX_OPEN_CONNS" default:"50"`
	MaxIdleConns    int           `envconfig:"CART_MYSQL_MAX_IDLE_CONNS" default:"25"`
	ConnMaxLifetime time.Duration `envconfig:"CART_MYSQL_CONN_MAX_LIFETIME" default:"5m"`
}

type RedisConfig struct {
	Addr     string        `envconfig:"CART_REDIS_ADDR" default:"localhost:6379"`
	Password string        `envconfig:"CART_REDIS_PASSWORD"`
	DB       int           `envconfig:"CART_REDIS_DB" default:"0"`
	PoolSize int           `envconfig:"CART_REDIS_POOL_SIZE" default:"100"`
	CartTTL  time.Duration `envconfig:"CART_CART_TTL" default:"72h"`
}

// Neo4jConfig leaves URI empty to fall back to the in-process graph.
type Neo4jConfig struct {
	URI      string `envconfig:"CART_NEO4J_URI"`
	User     string `envconfig:"CART_NEO4J_USER" default:"neo4j"`
	Password string `envconfig:"CART_NEO4J_PASSWORD"`
	Database string `envconfig:"CART_NEO4J_DATABASE" default:"neo4j"`
}

type CheckoutConfig struct {
	GuardTTL            time.Duration `envconfig:"CART_CHECKOUT_GUARD_TTL" default:"30s"`
	RecommendationLimit int           `envconfig:"CART_RECOMMENDATION_LIMIT" default:"5"`
}

// Load reads an optional .env file and then the CART_* environment.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// a missing .env is normal outside local development
		_ = godotenv.Load(f)
	}

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.App.StoreTimeout <= 0 {
		return fmt.Errorf("store timeout must be positive, got %s", c.App.StoreTimeout)
	}
	if c.App.ReadRetries < 1 {
		return fmt.Errorf("read retries must be at least 1, got %d", c.App.ReadRetries)
	}
	if c.App.RetryDelay < 0 {
		return fmt.Errorf("retry delay must not be negative, got %s", c.App.RetryDelay)
	}
	// one checkout line does a guard refresh, a decrement and a cart delete
	// before the next refresh; the guard has to outlive that.
	if minTTL := c.App.StoreTimeout * time.Duration(c.App.ReadRetries+2); c.Checkout.GuardTTL < minTTL {
		return fmt.Errorf("checkout guard ttl %s is shorter than %s needed per checkout line", c.Checkout.GuardTTL, minTTL)
	}
	if c.Checkout.RecommendationLimit <= 0 {
		return fmt.Errorf("recommendation limit must be positive, got %d", c.Checkout.RecommendationLimit)
	}
	if c.Neo4j.URI != "" && c.Neo4j.Password == "" {
		return fmt.Errorf("neo4j password is required when %s_NEO4J_URI is set", EnvPrefix)
	}
	return nil
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, "dev")
}

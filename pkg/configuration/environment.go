package configuration

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/iota-uz/utils/fs"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/backoffice/pkg/logging"
)

const Production = "production"

const (
	ResourceStoreMemory   = "memory"
	ResourceStoreRedis    = "redis"
	ResourceStorePostgres = "postgres"
)

var singleton = sync.OnceValue(func() *Configuration {
	c := &Configuration{}
	if err := c.load([]string{".env", ".env.local"}); err != nil {
		c.Unload()
		panic(err)
	}
	return c
})

// LoadEnv loads the given dotenv files. Files missing from the working directory
// are looked up in the nearest parent directory containing go.mod.
func LoadEnv(envFiles []string) (int, error) {
	existingFiles := make([]string, 0, len(envFiles))
	root := findModuleRoot()
	for _, file := range envFiles {
		if fs.FileExists(file) {
			existingFiles = append(existingFiles, file)
			continue
		}
		if root == "" || filepath.IsAbs(file) {
			continue
		}
		if candidate := filepath.Join(root, file); fs.FileExists(candidate) {
			existingFiles = append(existingFiles, candidate)
		}
	}

	if len(existingFiles) == 0 {
		return 0, nil
	}

	return len(existingFiles), godotenv.Load(existingFiles...)
}

func findModuleRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if fs.FileExists(filepath.Join(dir, "go.mod")) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

type DatabaseOptions struct {
	Opts     string `env:"-"`
	Name     string `env:"DB_NAME" envDefault:"backoffice"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Name, d.Password,
	)
}

// URL renders the options as a postgres:// URL for database/sql based tooling.
func (d *DatabaseOptions) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

type OpenTelemetryOptions struct {
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	TempoURL    string `env:"OTEL_TEMPO_URL" envDefault:"localhost:4318"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"backoffice"`
}

type PrometheusOptions struct {
	Enabled bool   `env:"PROMETHEUS_METRICS_ENABLED" envDefault:"false"`
	Path    string `env:"PROMETHEUS_METRICS_PATH" envDefault:"/debug/prometheus"`
}

type EditGrantOptions struct {
	// TTL bounds how long an approved grant stays usable after approval. Zero disables it.
	TTL time.Duration `env:"EDIT_GRANT_TTL" envDefault:"0"`
	// RestoreOnWriteFailure un-consumes a grant when the resource write fails.
	RestoreOnWriteFailure bool `env:"EDIT_GRANT_RESTORE_ON_WRITE_FAILURE" envDefault:"false"`
}

func (o *EditGrantOptions) Validate() error {
	if o.TTL < 0 {
		return fmt.Errorf("EDIT_GRANT_TTL must be non-negative, got %s", o.TTL)
	}
	return nil
}

type AuthzOptions struct {
	// PolicyPath optionally points at a casbin CSV policy replacing the built-in role policy.
	PolicyPath string `env:"AUTHZ_POLICY_PATH" envDefault:""`
}

type Configuration struct {
	Database      DatabaseOptions
	OpenTelemetry OpenTelemetryOptions
	Prometheus    PrometheusOptions
	EditGrants    EditGrantOptions
	Authz         AuthzOptions

	ResourceStore      string        `env:"RESOURCE_STORE" envDefault:"postgres"`
	RedisURL           string        `env:"REDIS_URL" envDefault:"localhost:6379"`
	InvalidationTopic  string        `env:"INVALIDATION_TOPIC" envDefault:"backoffice:invalidate"`
	ServerPort         int           `env:"PORT" envDefault:"3200"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	GoAppEnvironment   string        `env:"GO_APP_ENV" envDefault:"development"`
	SocketAddress      string        `env:"-"`
	PageSize           int           `env:"PAGE_SIZE" envDefault:"25"`
	MaxPageSize        int           `env:"MAX_PAGE_SIZE" envDefault:"100"`
	LogLevel           string        `env:"LOG_LEVEL" envDefault:"error"`
	LogPath            string        `env:"LOG_PATH" envDefault:"./logs/app.log"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	// Upstream gateway headers carrying the authenticated actor.
	ActorIDHeader   string `env:"ACTOR_ID_HEADER" envDefault:"X-Actor-ID"`
	ActorRoleHeader string `env:"ACTOR_ROLE_HEADER" envDefault:"X-Actor-Role"`
	// Incoming request id header; a random uuidv4 is generated when absent
	RequestIDHeader string `env:"REQUEST_ID_HEADER" envDefault:"X-Request-ID"`
	// Client address header; request.RemoteAddr is used when absent
	RealIPHeader string `env:"REAL_IP_HEADER" envDefault:"X-Real-IP"`
	// InvalidationEnabled re-publishes record change signals on the Redis channel.
	InvalidationEnabled bool `env:"INVALIDATION_ENABLED" envDefault:"false"`

	logFile *os.File
	logger  *logrus.Logger
}

// UsesRedis reports whether any component needs a Redis connection.
func (c *Configuration) UsesRedis() bool {
	return c.ResourceStore == ResourceStoreRedis || c.InvalidationEnabled
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch c.LogLevel {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.ErrorLevel
	}
}

func Use() *Configuration {
	return singleton()
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := env.Parse(c); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}

	f, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.LogPath)
	if err != nil {
		return err
	}
	c.logFile = f
	c.logger = logger

	c.Database.Opts = c.Database.ConnectionString()
	if c.GoAppEnvironment == Production {
		c.SocketAddress = fmt.Sprintf(":%d", c.ServerPort)
	} else {
		c.SocketAddress = fmt.Sprintf("localhost:%d", c.ServerPort)
	}
	return nil
}

// Validate normalizes enumerated options and rejects invalid combinations.
func (c *Configuration) Validate() error {
	if err := c.EditGrants.Validate(); err != nil {
		return fmt.Errorf("edit grant configuration error: %w", err)
	}

	store := strings.ToLower(strings.TrimSpace(c.ResourceStore))
	if store == "" {
		store = ResourceStorePostgres
	}
	switch store {
	case ResourceStoreMemory, ResourceStoreRedis, ResourceStorePostgres:
	default:
		return fmt.Errorf("invalid RESOURCE_STORE=%q (expected memory|redis|postgres)", c.ResourceStore)
	}
	c.ResourceStore = store

	if c.PageSize <= 0 {
		return fmt.Errorf("PAGE_SIZE must be positive, got %d", c.PageSize)
	}
	if c.MaxPageSize < c.PageSize {
		return fmt.Errorf("MAX_PAGE_SIZE (%d) must be >= PAGE_SIZE (%d)", c.MaxPageSize, c.PageSize)
	}
	return nil
}

// Unload handles a graceful shutdown.
func (c *Configuration) Unload() {
	if c.logFile != nil {
		if err := c.logFile.Close(); err != nil {
			log.Printf("Failed to close log file: %v", err)
		}
		c.logFile = nil
	}
}

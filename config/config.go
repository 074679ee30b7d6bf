package config

import (
	"os"
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// SysConfig system configuration
type SysConfig struct {
	Appid    string `yaml:"appid"`
	Location string `yaml:"location"`
	Workdir  string `yaml:"workdir"`
	Debug    bool   `yaml:"debug"`
}

// RemoteConfig remote catalog service endpoints.
// A zero Timeout leaves the transport default in place.
type RemoteConfig struct {
	BaseURL    string        `yaml:"base_url"`
	FetchPath  string        `yaml:"fetch_path"`
	CreatePath string        `yaml:"create_path"`
	Timeout    time.Duration `yaml:"timeout"`
}

// DBConfig local store configuration
type DBConfig struct {
	Type   string `yaml:"type"` // sqlite, postgres, bolt
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	Name   string `yaml:"name"`
	User   string `yaml:"user"`
	Passwd string `yaml:"passwd"`
	Debug  bool   `yaml:"debug"`
}

// LogConfig logging configuration
type LogConfig struct {
	Mode       string `yaml:"mode"`
	FileEnable bool   `yaml:"file_enable"`
	Filename   string `yaml:"filename"`
}

// ConnectivityConfig controls the reachability probe feeding the connectivity oracle
type ConnectivityConfig struct {
	ProbeAddr     string        `yaml:"probe_addr"`
	ProbeSchedule string        `yaml:"probe_schedule"`
	DialTimeout   time.Duration `yaml:"dial_timeout"`
	ForceOffline  bool          `yaml:"force_offline"`
}

// FeedbackConfig auto-clear delays of the ephemeral feedback slots
type FeedbackConfig struct {
	ListClearAfter time.Duration `yaml:"list_clear_after"`
	FormClearAfter time.Duration `yaml:"form_clear_after"`
}

// WorkerConfig detached task pool
type WorkerConfig struct {
	PoolSize int `yaml:"pool_size"`
}

// CatalogConfig catalog behaviour
type CatalogConfig struct {
	RefreshSchedule string   `yaml:"refresh_schedule"`
	DefaultType     string   `yaml:"default_type"`
	TypeOptions     []string `yaml:"type_options"`
}

// WebConfig local HTTP surface
type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// MetricsConfig metrics storage
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// AppConfig application configuration
type AppConfig struct {
	System       SysConfig          `yaml:"system"`
	Remote       RemoteConfig       `yaml:"remote"`
	Database     DBConfig           `yaml:"database"`
	Logger       LogConfig          `yaml:"logger"`
	Connectivity ConnectivityConfig `yaml:"connectivity"`
	Feedback     FeedbackConfig     `yaml:"feedback"`
	Worker       WorkerConfig       `yaml:"worker"`
	Catalog      CatalogConfig      `yaml:"catalog"`
	Web          WebConfig          `yaml:"web"`
	Metrics      MetricsConfig      `yaml:"metrics"`
}

// GetLogDir returns the log directory under the workdir
func (c *AppConfig) GetLogDir() string {
	return path.Join(c.System.Workdir, "logs")
}

// GetDataDir returns the data directory under the workdir
func (c *AppConfig) GetDataDir() string {
	return path.Join(c.System.Workdir, "data")
}

// InitDirs creates the workdir layout
func (c *AppConfig) InitDirs() error {
	for _, dir := range []string{c.System.Workdir, c.GetLogDir(), c.GetDataDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create dir %s", dir)
		}
	}
	return nil
}

// DefaultAppConfig returns the built-in defaults
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		System: SysConfig{
			Appid:    "ProdCatalog",
			Location: "Local",
			Workdir:  "/var/prodcatalog",
			Debug:    false,
		},
		Remote: RemoteConfig{
			BaseURL:    "https://app.getswipe.in",
			FetchPath:  "/api/public/get",
			CreatePath: "/api/public/add",
		},
		Database: DBConfig{
			Type: "sqlite",
			Name: "prodcatalog.db",
		},
		Logger: LogConfig{
			Mode:       "development",
			FileEnable: false,
			Filename:   "/var/prodcatalog/logs/prodcatalog.log",
		},
		Connectivity: ConnectivityConfig{
			ProbeAddr:     "app.getswipe.in:443",
			ProbeSchedule: "@every 5s",
			DialTimeout:   3 * time.Second,
		},
		Feedback: FeedbackConfig{
			ListClearAfter: 3 * time.Second,
			FormClearAfter: 2 * time.Second,
		},
		Worker: WorkerConfig{
			PoolSize: 16,
		},
		Catalog: CatalogConfig{
			DefaultType: "type 1",
			TypeOptions: []string{"type 1", "type 2", "type 3", "type 4"},
		},
		Web: WebConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    1816,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// LoadConfig reads the YAML file (if any) on top of the defaults and applies
// CATALOG_* environment overrides.
func LoadConfig(cfile string) (*AppConfig, error) {
	cfg := DefaultAppConfig()
	if cfile != "" {
		data, err := os.ReadFile(cfile)
		if err != nil {
			return nil, errors.Wrapf(err, "read config %s", cfile)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", cfile)
		}
	}
	applyEnv(cfg, os.LookupEnv)
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

func applyEnv(cfg *AppConfig, lookup lookupFunc) {
	setString(lookup, "CATALOG_SYSTEM_WORKDIR", &cfg.System.Workdir)
	setString(lookup, "CATALOG_SYSTEM_LOCATION", &cfg.System.Location)
	setBool(lookup, "CATALOG_SYSTEM_DEBUG", &cfg.System.Debug)

	setString(lookup, "CATALOG_REMOTE_BASE_URL", &cfg.Remote.BaseURL)
	setString(lookup, "CATALOG_REMOTE_FETCH_PATH", &cfg.Remote.FetchPath)
	setString(lookup, "CATALOG_REMOTE_CREATE_PATH", &cfg.Remote.CreatePath)
	setDuration(lookup, "CATALOG_REMOTE_TIMEOUT", &cfg.Remote.Timeout)

	setString(lookup, "CATALOG_DB_TYPE", &cfg.Database.Type)
	setString(lookup, "CATALOG_DB_HOST", &cfg.Database.Host)
	setInt(lookup, "CATALOG_DB_PORT", &cfg.Database.Port)
	setString(lookup, "CATALOG_DB_NAME", &cfg.Database.Name)
	setString(lookup, "CATALOG_DB_USER", &cfg.Database.User)
	setString(lookup, "CATALOG_DB_PASSWD", &cfg.Database.Passwd)

	setString(lookup, "CATALOG_LOGGER_MODE", &cfg.Logger.Mode)
	setBool(lookup, "CATALOG_LOGGER_FILE_ENABLE", &cfg.Logger.FileEnable)
	setString(lookup, "CATALOG_LOGGER_FILENAME", &cfg.Logger.Filename)

	setString(lookup, "CATALOG_CONNECTIVITY_PROBE_ADDR", &cfg.Connectivity.ProbeAddr)
	setString(lookup, "CATALOG_CONNECTIVITY_PROBE_SCHEDULE", &cfg.Connectivity.ProbeSchedule)
	setBool(lookup, "CATALOG_CONNECTIVITY_FORCE_OFFLINE", &cfg.Connectivity.ForceOffline)

	setInt(lookup, "CATALOG_WORKER_POOL_SIZE", &cfg.Worker.PoolSize)
	setString(lookup, "CATALOG_REFRESH_SCHEDULE", &cfg.Catalog.RefreshSchedule)

	setBool(lookup, "CATALOG_WEB_ENABLED", &cfg.Web.Enabled)
	setString(lookup, "CATALOG_WEB_HOST", &cfg.Web.Host)
	setInt(lookup, "CATALOG_WEB_PORT", &cfg.Web.Port)
	setBool(lookup, "CATALOG_METRICS_ENABLED", &cfg.Metrics.Enabled)
}

func setString(lookup lookupFunc, key string, dst *string) {
	if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func setBool(lookup lookupFunc, key string, dst *bool) {
	if v, ok := lookup(key); ok {
		if b, err := cast.ToBoolE(strings.TrimSpace(v)); err == nil {
			*dst = b
		}
	}
}

func setInt(lookup lookupFunc, key string, dst *int) {
	if v, ok := lookup(key); ok {
		if i, err := cast.ToIntE(strings.TrimSpace(v)); err == nil {
			*dst = i
		}
	}
}

func setDuration(lookup lookupFunc, key string, dst *time.Duration) {
	if v, ok := lookup(key); ok {
		if d, err := cast.ToDurationE(strings.TrimSpace(v)); err == nil {
			*dst = d
		}
	}
}

// Package config loads the eis-ingest configuration from config.yaml and
// EIS_-prefixed environment variables.
package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/eis-ingest/internal/model"
)

// Config holds the full application configuration. It is loaded once and
// not mutated afterwards.
type Config struct {
	Store    StoreConfig       `yaml:"store" mapstructure:"store"`
	EIS      EISConfig         `yaml:"eis" mapstructure:"eis"`
	Download DownloadConfig    `yaml:"download" mapstructure:"download"`
	Tunnel   TunnelConfig      `yaml:"tunnel" mapstructure:"tunnel"`
	Crawl    CrawlConfig       `yaml:"crawl" mapstructure:"crawl"`
	Ingest   IngestConfig      `yaml:"ingest" mapstructure:"ingest"`
	Schemas  map[string]string `yaml:"schemas" mapstructure:"schemas"`
	Refdata  RefdataConfig     `yaml:"refdata" mapstructure:"refdata"`
	Server   ServerConfig      `yaml:"server" mapstructure:"server"`
	Log      LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// EISConfig configures the document export SOAP service.
type EISConfig struct {
	Endpoint            string            `yaml:"endpoint" mapstructure:"endpoint"`
	Token               string            `yaml:"token" mapstructure:"token"`
	TimeoutSecs         int               `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RetryAttempts       int               `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryBackoffMs      int               `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
	BreakerThreshold    int               `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldownSecs int               `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
	Subsystems          []SubsystemConfig `yaml:"subsystems" mapstructure:"subsystems"`
}

// SubsystemConfig maps a registry subsystem to its law, document family and
// requested document types.
type SubsystemConfig struct {
	Code     string   `yaml:"code" mapstructure:"code"`
	Law      string   `yaml:"law" mapstructure:"law"`
	Family   string   `yaml:"family" mapstructure:"family"`
	DocTypes []string `yaml:"doc_types" mapstructure:"doc_types"`
}

// DownloadConfig configures archive downloads.
type DownloadConfig struct {
	Dir          string  `yaml:"dir" mapstructure:"dir"`
	UserAgent    string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec   float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	KeepArchives bool    `yaml:"keep_archives" mapstructure:"keep_archives"`
	FTPUser      string  `yaml:"ftp_user" mapstructure:"ftp_user"`
	FTPPassword  string  `yaml:"ftp_password" mapstructure:"ftp_password"`
}

// TunnelConfig configures the local TLS tunnel.
type TunnelConfig struct {
	Addr             string   `yaml:"addr" mapstructure:"addr"`
	Command          []string `yaml:"command" mapstructure:"command"`
	Dir              string   `yaml:"dir" mapstructure:"dir"`
	LogFile          string   `yaml:"log_file" mapstructure:"log_file"`
	StartTimeoutSecs int      `yaml:"start_timeout_secs" mapstructure:"start_timeout_secs"`
}

// CrawlConfig configures the date sweep.
type CrawlConfig struct {
	StartDate string `yaml:"start_date" mapstructure:"start_date"`
}

// IngestConfig configures per-document processing.
type IngestConfig struct {
	LedgerMode      string `yaml:"ledger_mode" mapstructure:"ledger_mode"`
	SettleDelayMs   int    `yaml:"settle_delay_ms" mapstructure:"settle_delay_ms"`
	RemoveMalformed bool   `yaml:"remove_malformed" mapstructure:"remove_malformed"`
	// FamilyDirs maps a family name to a directory whose XML files belong
	// to it, for `process` runs without --family.
	FamilyDirs map[string]string `yaml:"family_dirs" mapstructure:"family_dirs"`
}

// RefdataConfig locates reference data files.
type RefdataConfig struct {
	RegionsFile string `yaml:"regions_file" mapstructure:"regions_file"`
	CodesFile   string `yaml:"codes_file" mapstructure:"codes_file"`
}

// ServerConfig configures the status server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("EIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("eis.token", "EIS_TOKEN")
	_ = v.BindEnv("store.database_url", "EIS_DATABASE_URL", "DATABASE_URL")

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("eis.endpoint", "http://localhost:8080/eis-integration/services/getDocsIP")
	v.SetDefault("eis.token", "")
	v.SetDefault("eis.timeout_secs", 60)
	v.SetDefault("eis.retry_attempts", 3)
	v.SetDefault("eis.retry_backoff_ms", 1000)
	v.SetDefault("eis.breaker_threshold", 5)
	v.SetDefault("eis.breaker_cooldown_secs", 60)
	v.SetDefault("eis.subsystems", []map[string]any{
		{"code": "PRIZ", "law": "44", "family": "new_44", "doc_types": []string{"epNotificationEF2020"}},
		{"code": "RGK", "law": "44", "family": "recouped_44", "doc_types": []string{"contract"}},
		{"code": "RI223", "law": "223", "family": "new_223", "doc_types": []string{"purchaseNotice"}},
		{"code": "RD223", "law": "223", "family": "recouped_223", "doc_types": []string{"contract"}},
	})
	v.SetDefault("download.dir", "downloads")
	v.SetDefault("download.user_agent", "eis-ingest/1.0")
	v.SetDefault("download.timeout_secs", 120)
	v.SetDefault("download.rate_per_sec", 5)
	v.SetDefault("tunnel.addr", "localhost:8080")
	v.SetDefault("tunnel.start_timeout_secs", 30)
	v.SetDefault("ingest.ledger_mode", "atomic")
	v.SetDefault("ingest.settle_delay_ms", 500)
	v.SetDefault("schemas", map[string]string{
		"new_44":       "configs/schemas/new_44.yaml",
		"recouped_44":  "configs/schemas/recouped_44.yaml",
		"new_223":      "configs/schemas/new_223.yaml",
		"recouped_223": "configs/schemas/recouped_223.yaml",
	})
	v.SetDefault("refdata.regions_file", "configs/regions.json")
	v.SetDefault("server.port", 8081)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	return &cfg, nil
}

// Validate rejects configuration the run cannot proceed with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		return eris.Errorf("config: store.driver must be postgres or sqlite, got %q", c.Store.Driver)
	}
	switch c.Ingest.LedgerMode {
	case "atomic", "reserve":
	default:
		return eris.Errorf("config: ingest.ledger_mode must be atomic or reserve, got %q", c.Ingest.LedgerMode)
	}
	for name := range c.Schemas {
		if _, err := model.ParseFamily(name); err != nil {
			return eris.Wrapf(err, "config: schemas.%s", name)
		}
	}
	for name := range c.Ingest.FamilyDirs {
		if _, err := model.ParseFamily(name); err != nil {
			return eris.Wrapf(err, "config: ingest.family_dirs.%s", name)
		}
	}
	seen := make(map[string]bool)
	for _, s := range c.EIS.Subsystems {
		if s.Code == "" {
			return eris.New("config: eis.subsystems entry without code")
		}
		if seen[s.Code] {
			return eris.Errorf("config: eis subsystem %s listed twice", s.Code)
		}
		seen[s.Code] = true
		f, err := model.ParseFamily(s.Family)
		if err != nil {
			return eris.Wrapf(err, "config: eis subsystem %s", s.Code)
		}
		if s.Law != f.Law() {
			return eris.Errorf("config: eis subsystem %s has law %q but family %s is %s-law", s.Code, s.Law, f, f.Law())
		}
	}
	if c.Crawl.StartDate != "" {
		if _, err := c.StartDate(); err != nil {
			return err
		}
	}
	return nil
}

// StartDate parses crawl.start_date. An empty value is the zero time.
func (c *Config) StartDate() (time.Time, error) {
	if c.Crawl.StartDate == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse(time.DateOnly, c.Crawl.StartDate)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "config: crawl.start_date %q", c.Crawl.StartDate)
	}
	return d, nil
}

// SchemaPaths returns the schema file of each configured family.
func (c *Config) SchemaPaths() (map[model.DocumentFamily]string, error) {
	out := make(map[model.DocumentFamily]string, len(c.Schemas))
	for name, path := range c.Schemas {
		f, err := model.ParseFamily(name)
		if err != nil {
			return nil, eris.Wrapf(err, "config: schemas.%s", name)
		}
		out[f] = path
	}
	return out, nil
}

// FamilyForSubsystem returns the family configured for a subsystem code.
func (c *Config) FamilyForSubsystem(code string) (model.DocumentFamily, error) {
	for _, s := range c.EIS.Subsystems {
		if strings.EqualFold(s.Code, code) {
			return model.ParseFamily(s.Family)
		}
	}
	return 0, eris.Errorf("config: no family for subsystem %q", code)
}

// FamilyForDir returns the family whose configured directory contains dir.
func (c *Config) FamilyForDir(dir string) (model.DocumentFamily, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return 0, eris.Wrapf(err, "config: resolve %s", dir)
	}
	for name, famDir := range c.Ingest.FamilyDirs {
		root, err := filepath.Abs(famDir)
		if err != nil {
			continue
		}
		if rel, err := filepath.Rel(root, abs); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return model.ParseFamily(name)
		}
	}
	return 0, eris.Errorf("config: %s is not under any ingest.family_dirs entry", dir)
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)
	return nil
}

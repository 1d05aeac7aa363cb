package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/eis-ingest/internal/model"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, int32(4), cfg.Store.MaxConns)
	assert.Equal(t, "http://localhost:8080/eis-integration/services/getDocsIP", cfg.EIS.Endpoint)
	assert.Equal(t, 3, cfg.EIS.RetryAttempts)
	assert.Equal(t, "atomic", cfg.Ingest.LedgerMode)
	assert.Equal(t, 500, cfg.Ingest.SettleDelayMs)
	assert.Equal(t, "localhost:8080", cfg.Tunnel.Addr)
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	require.Len(t, cfg.EIS.Subsystems, 4)
	assert.Equal(t, SubsystemConfig{Code: "PRIZ", Law: "44", Family: "new_44", DocTypes: []string{"epNotificationEF2020"}}, cfg.EIS.Subsystems[0])

	paths, err := cfg.SchemaPaths()
	require.NoError(t, err)
	assert.Equal(t, "configs/schemas/recouped_223.yaml", paths[model.Recouped223])
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)
	yaml := `
store:
  driver: sqlite
  database_url: eis.db
eis:
  subsystems:
    - code: RI223
      law: "223"
      family: new_223
      doc_types: [purchaseNotice, purchaseNoticeAE]
crawl:
  start_date: "2024-01-10"
ingest:
  ledger_mode: reserve
  remove_malformed: true
  family_dirs:
    new_44: xml/44
tunnel:
  command: [stunnel, stunnel.conf]
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "eis.db", cfg.Store.DatabaseURL)
	require.Len(t, cfg.EIS.Subsystems, 1)
	assert.Equal(t, []string{"purchaseNotice", "purchaseNoticeAE"}, cfg.EIS.Subsystems[0].DocTypes)
	assert.Equal(t, "reserve", cfg.Ingest.LedgerMode)
	assert.True(t, cfg.Ingest.RemoveMalformed)
	assert.Equal(t, []string{"stunnel", "stunnel.conf"}, cfg.Tunnel.Command)

	start, err := cfg.StartDate()
	require.NoError(t, err)
	assert.Equal(t, "2024-01-10", start.Format("2006-01-02"))

	f, err := cfg.FamilyForDir(filepath.Join("xml", "44", "01"))
	require.NoError(t, err)
	assert.Equal(t, model.NewContract44, f)

	_, err = cfg.FamilyForDir("elsewhere")
	assert.Error(t, err)
}

func TestLoadEnvToken(t *testing.T) {
	chdirTemp(t)
	t.Setenv("EIS_TOKEN", "secret-token")
	t.Setenv("EIS_STORE_DRIVER", "sqlite")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "secret-token", cfg.EIS.Token)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [\n"), 0o644))

	_, err := Load()
	assert.ErrorContains(t, err, "config: read file")
}

func validConfig() *Config {
	return &Config{
		Store:  StoreConfig{Driver: "sqlite"},
		Ingest: IngestConfig{LedgerMode: "atomic"},
		EIS: EISConfig{Subsystems: []SubsystemConfig{
			{Code: "PRIZ", Law: "44", Family: "new_44"},
			{Code: "RD223", Law: "223", Family: "recouped_223"},
		}},
		Schemas: map[string]string{"new_44": "a.yaml"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad driver", func(c *Config) { c.Store.Driver = "mysql" }, "store.driver"},
		{"bad ledger mode", func(c *Config) { c.Ingest.LedgerMode = "eventually" }, "ledger_mode"},
		{"unknown schema family", func(c *Config) { c.Schemas["new_94"] = "x.yaml" }, "schemas.new_94"},
		{"unknown family dir", func(c *Config) { c.Ingest.FamilyDirs = map[string]string{"old": "x"} }, "family_dirs.old"},
		{"subsystem without family", func(c *Config) { c.EIS.Subsystems[0].Family = "" }, "eis subsystem PRIZ"},
		{"law mismatch", func(c *Config) { c.EIS.Subsystems[1].Law = "44" }, "223-law"},
		{"duplicate subsystem", func(c *Config) { c.EIS.Subsystems[1].Code = "PRIZ" }, "listed twice"},
		{"missing code", func(c *Config) { c.EIS.Subsystems[0].Code = "" }, "without code"},
		{"bad start date", func(c *Config) { c.Crawl.StartDate = "15.01.2024" }, "crawl.start_date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestFamilyForSubsystem(t *testing.T) {
	c := validConfig()
	f, err := c.FamilyForSubsystem("rd223")
	require.NoError(t, err)
	assert.Equal(t, model.Recouped223, f)

	_, err = c.FamilyForSubsystem("XYZ")
	assert.Error(t, err)
}

func TestStartDateEmpty(t *testing.T) {
	d, err := (&Config{}).StartDate()
	require.NoError(t, err)
	assert.True(t, d.IsZero())
}

func TestInitLogger(t *testing.T) {
	prev := zap.L()
	t.Cleanup(func() { zap.ReplaceGlobals(prev) })

	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	require.NoError(t, InitLogger(LogConfig{Level: "warn", Format: "json"}))
	assert.Error(t, InitLogger(LogConfig{Level: "loud"}))
}

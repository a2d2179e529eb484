package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zhfmzl/priceUpdate-BTB/internal/resilience"
)

// chdirTemp moves into an empty temp dir so no config.yaml or .env is found.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Env)
	assert.False(t, cfg.Production())
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "priceupdate.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Campaign.Concurrency)
	assert.Equal(t, "grade", cfg.Campaign.Grouping)
	assert.Equal(t, "drop", cfg.Campaign.FailurePolicy)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, cfg.Campaign.Grades)
	assert.Equal(t, 80, cfg.Extract.ReadyTimeoutSecs)
	assert.Equal(t, 30*time.Second, cfg.Extract.NavigateTimeout())
	assert.Equal(t, ".txt strong", cfg.Extract.Selector)
	assert.Equal(t, "title", cfg.Extract.ReadyAttr)
	assert.Contains(t, cfg.Extract.URLTemplate, "spid={id}")
	assert.Equal(t, int64(10000), cfg.Query.Limit)
	assert.True(t, cfg.Browser.Headless)
	assert.Contains(t, cfg.Browser.Flags, "no-sandbox")
	assert.Contains(t, cfg.Filter.BlockedTypes, "stylesheet")
	assert.Equal(t, []string{"google-analytics.com", "doubleclick.net"}, cfg.Filter.BlockedDomains)
	assert.Equal(t, "", cfg.ChromeBin())
	assert.False(t, cfg.Monitor.Enabled)
	assert.Equal(t, 300, cfg.Monitor.CheckIntervalSecs)
	assert.Equal(t, 24, cfg.Monitor.LookbackWindowHours)
	assert.InDelta(t, 0.10, cfg.Monitor.RunFailureThreshold, 1e-9)
	assert.InDelta(t, 0.25, cfg.Monitor.PairFailureThreshold, 1e-9)
	assert.Equal(t, 500, cfg.Monitor.DLQDepthThreshold)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/ledger
log:
  level: debug
  format: console
campaign:
  concurrency: 4
  grouping: season
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 4, cfg.Campaign.Concurrency)
	assert.Equal(t, "season", cfg.Campaign.Grouping)
	// Defaults still apply for unset values
	assert.Equal(t, "drop", cfg.Campaign.FailurePolicy)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("PRICEUPDATE_STORE_DRIVER", "postgres")
	t.Setenv("PRICEUPDATE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadLegacyEnvNames(t *testing.T) {
	chdirTemp(t)

	t.Setenv("MONGODB_URL", "mongodb://localhost:27017")
	t.Setenv("NODE_ENV", "production")
	t.Setenv("CHROME_EXECUTABLE_PATH", "/opt/chrome")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "mongodb://localhost:27017", cfg.Mongo.URL)
	assert.True(t, cfg.Production())
	assert.Equal(t, "/opt/chrome", cfg.ChromeBin())
}

func TestLoadDotEnvInDevelopment(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("PRICEUPDATE_SERVER_PORT=3000\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("PRICEUPDATE_SERVER_PORT") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestLoadDotEnvIgnoredInProduction(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("PRICEUPDATE_SERVER_PORT=3000\n"), 0644))
	t.Setenv("NODE_ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestChromeBin(t *testing.T) {
	cfg := &Config{Env: "production"}
	assert.Equal(t, DefaultChromeBin, cfg.ChromeBin())

	cfg.Browser.Bin = "/usr/bin/chromium"
	assert.Equal(t, "/usr/bin/chromium", cfg.ChromeBin())

	cfg.Env = "development"
	assert.Equal(t, "", cfg.ChromeBin(), "development lets the launcher resolve a browser")
}

func TestLoadChromePathIgnoredInDevelopment(t *testing.T) {
	chdirTemp(t)
	t.Setenv("NODE_ENV", "development")
	t.Setenv("CHROME_EXECUTABLE_PATH", "/opt/chrome")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.Production())
	assert.Equal(t, "/opt/chrome", cfg.Browser.Bin)
	assert.Equal(t, "", cfg.ChromeBin())
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Mongo.URL = "mongodb://localhost:27017"
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "priceupdate.db"
	cfg.Campaign.Concurrency = 10
	cfg.Campaign.Grouping = "grade"
	cfg.Campaign.FailurePolicy = "drop"
	cfg.Campaign.Grades = []int{1, 2, 3}
	cfg.Extract.ReadyTimeoutSecs = 80
	cfg.Extract.URLTemplate = "https://example.com/p?spid={id}&n1Strong={grade}"
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateCampaign_AllPresent(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("campaign"))
}

func TestValidateCampaign_MissingMongo(t *testing.T) {
	cfg := validDefaults()
	cfg.Mongo.URL = ""

	err := cfg.Validate("campaign")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mongo.url is required")
	assert.True(t, resilience.IsKind(err, resilience.KindConfiguration))
}

func TestValidateCampaign_BadOptions(t *testing.T) {
	cfg := validDefaults()
	cfg.Campaign.Concurrency = 0
	cfg.Campaign.Grouping = "random"
	cfg.Campaign.FailurePolicy = "keep"
	cfg.Campaign.Grades = []int{0, 9}

	err := cfg.Validate("campaign")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "campaign.concurrency")
	assert.Contains(t, err.Error(), "campaign.grouping")
	assert.Contains(t, err.Error(), "campaign.failure_policy")
	assert.Contains(t, err.Error(), "campaign.grades")
}

func TestValidateRuns_NoMongoNeeded(t *testing.T) {
	cfg := validDefaults()
	cfg.Mongo.URL = ""

	assert.NoError(t, cfg.Validate("runs"))
}

func TestValidateStoreDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("runs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testYAML = `
bot:
  token: "123:abc"
  mode: polling
database:
  host: db
  user: debtbot
  name: debts
ledger:
  store: memory
  currencies: [USD, EUR]
rates:
  lookback_days: 7
logger:
  level: debug
  format: text
`

func writeConfig(t *testing.T, env, body string) {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "configs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "configs", env+".yaml"), []byte(body), 0o600))

	chdir(t, dir)
	t.Setenv("APP_ENV", env)
}

func TestLoad(t *testing.T) {
	writeConfig(t, "test", testYAML)
	t.Setenv("DATABASE_PASSWORD", "from-env")

	cfg, v, err := Load()
	require.NoError(t, err)
	require.NotNil(t, v)

	assert.Equal(t, "test", cfg.AppEnv)
	assert.Equal(t, "123:abc", cfg.Bot.Token)
	assert.Equal(t, "from-env", cfg.Database.Password)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, []string{"USD", "EUR"}, cfg.Ledger.Currencies)
	assert.Equal(t, "memory", cfg.Ledger.Store)
	assert.Equal(t, 7, cfg.Rates.LookbackDays)
	assert.Equal(t, 24*time.Hour, cfg.Rates.CacheTTL)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, ":8080", cfg.Server.Addr())
}

func TestLoad_ValidationFailure(t *testing.T) {
	writeConfig(t, "broken", `
bot:
  token: "x"
  mode: carrier-pigeon
`)

	_, _, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validate config")
}

func TestLoad_MissingFile(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("APP_ENV", "nowhere")

	_, _, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()

	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore working directory: %v", err)
		}
	})
}

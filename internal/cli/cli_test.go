package cli

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ToughForge/EspoMCP/internal/audit"
	"github.com/ToughForge/EspoMCP/internal/config"
)

func execute(t *testing.T, args ...string) error {
	t.Helper()
	configPath = ""
	configForce = false
	configURL = ""
	configAPIKey = ""
	jsonOut = false
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"serve", "inspect", "browse", "audit", "config", "version"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	require.NoError(t, execute(t, "config", "init", "--config", path, "--url", "https://crm.example.com", "--api-key", "k1"))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://crm.example.com", cfg.Espo.URL)
	assert.Equal(t, "k1", cfg.Espo.APIKey)

	// second init without --force refuses to overwrite
	err = execute(t, "config", "init", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "이미 존재합니다")

	require.NoError(t, execute(t, "config", "init", "--config", path, "--force"))
	cfg, err = config.Load(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.Espo.URL)
}

func TestServe_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, config.Save(path, config.Default()))

	err := execute(t, "serve", "--config", path, "--mode", "bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "설정 오류")
}

func TestAudit_Disabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := config.Default()
	cfg.Audit.Driver = ""
	require.NoError(t, config.Save(path, cfg))

	err := execute(t, "audit", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "비활성화")
}

func TestOpenAudit(t *testing.T) {
	cfg := config.Default()
	cfg.Audit.Path = filepath.Join(t.TempDir(), "audit.db")

	log, database, err := openAudit(cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer database.Close()

	ctx := context.Background()
	require.NoError(t, log.Record(ctx, audit.Call{
		Caller:   "s1",
		Tool:     "get_account",
		Action:   "get",
		Entity:   "Account",
		Duration: 5 * time.Millisecond,
	}))

	calls, total, err := log.List(ctx, audit.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, calls, 1)
	assert.Equal(t, "get_account", calls[0].Tool)
}

func TestNewFactory(t *testing.T) {
	cfg := config.Default()
	cfg.Espo.URL = "https://crm.example.com"
	cfg.DisplayNameFields = []string{"title"}

	f := newFactory(cfg, zap.NewNop().Sugar())
	require.NotNil(t, f.NewClient("key"))
	assert.Len(t, f.DisplayNames, 1)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 12))
	assert.Equal(t, "abcdef123456", truncate("abcdef1234567890", 12))
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfigFile(t *testing.T, doc map[string]interface{}) string {
	t.Helper()
	payload, err := yaml.Marshal(doc)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "coffer.yaml")
	require.NoError(t, os.WriteFile(path, payload, 0o600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "sqlite", cfg.DatabaseType)
	assert.Equal(t, "root", cfg.RootUsername)
	assert.Equal(t, "bcrypt", cfg.PasswordMethod)
	assert.Equal(t, 2, cfg.RoleResolutionDepth)
	assert.Equal(t, 24*time.Hour, cfg.TokenExpiry)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.Cluster.Enabled)
	assert.False(t, cfg.Directory.Enabled)

	require.NoError(t, cfg.Validate())
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().DatabasePath, cfg.DatabasePath)
}

func TestLoad_FromYAMLFile(t *testing.T) {
	path := writeConfigFile(t, map[string]interface{}{
		"database_path":         "/var/lib/coffer/users.db",
		"root_username":         "admin",
		"bcrypt_cost":           12,
		"role_resolution_depth": 3,
		"log_level":             "debug",
		"cluster": map[string]interface{}{
			"enabled": true,
			"urls":    []string{"nats://n1:4222", "nats://n2:4222"},
			"node_id": "node-a",
		},
	})

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/coffer/users.db", cfg.DatabasePath)
	assert.Equal(t, "admin", cfg.RootUsername)
	assert.Equal(t, 12, cfg.BcryptCost)
	assert.Equal(t, 3, cfg.RoleResolutionDepth)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Cluster.Enabled)
	assert.Len(t, cfg.Cluster.URLs, 2)
	// untouched fields keep their defaults
	assert.Equal(t, "sqlite", cfg.DatabaseType)
	assert.Equal(t, "coffer.auth.invalidate", cfg.Cluster.Subject)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/coffer.yaml")
	assert.Error(t, err)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	path := writeConfigFile(t, map[string]interface{}{
		"log_level": "verbose",
	})
	_, err := Load(path)
	assert.Error(t, err)

	path = writeConfigFile(t, map[string]interface{}{
		"bcrypt_cost": 99,
	})
	_, err = Load(path)
	assert.Error(t, err)

	path = writeConfigFile(t, map[string]interface{}{
		"database_type": "postgres",
	})
	_, err = Load(path)
	assert.Error(t, err)
}

func TestValidate_CrossFieldRules(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cluster.Enabled = true
	assert.Error(t, cfg.Validate())
	cfg.Cluster.URLs = []string{"nats://localhost:4222"}
	assert.NoError(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Directory.Enabled = true
	assert.Error(t, cfg.Validate())
	cfg.Directory.Endpoint = "https://directory.internal"
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("COFFER_ROOT_USERNAME", "superuser")
	t.Setenv("COFFER_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "superuser", cfg.RootUsername)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestWatch_RequiresPath(t *testing.T) {
	err := Watch("", func(*Config) {})
	assert.Error(t, err)
}

func TestWatch_DeliversValidUpdates(t *testing.T) {
	path := writeConfigFile(t, map[string]interface{}{
		"log_level": "info",
	})

	updates := make(chan *Config, 1)
	require.NoError(t, Watch(path, func(cfg *Config) {
		select {
		case updates <- cfg:
		default:
		}
	}))

	payload, err := yaml.Marshal(map[string]interface{}{"log_level": "debug"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, payload, 0o600))

	select {
	case cfg := <-updates:
		assert.Equal(t, "debug", cfg.LogLevel)
	case <-time.After(5 * time.Second):
		t.Fatal("no config update observed")
	}
}

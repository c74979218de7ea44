package configs_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/cloudvault/pkg/configs"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := configs.Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, 100*configs.MiB, cfg.Upload.MaxFileSize)
	assert.Equal(t, 500*configs.MiB, cfg.Upload.MaxBatchSize)
	assert.Equal(t, 255, cfg.Upload.MaxNameLength)
	assert.ElementsMatch(t, []string{".exe", ".bat", ".cmd", ".scr"}, cfg.Upload.BlockedExtensions)
	assert.Equal(t, 15*time.Minute, cfg.Upload.DownloadURLTTL)
	assert.Equal(t, int64(50_000_000), cfg.Upload.MaxImagePixels)
	assert.Equal(t, "7d", cfg.Share.DefaultExpiresIn)
	assert.Equal(t, configs.KVTypeMemory, cfg.KV.Type)
	assert.Equal(t, configs.MQTypeGoChannel, cfg.MQ.Type)
	assert.Equal(t, configs.SQLite, cfg.DB.Type)
	assert.Equal(t, configs.RescanPolicyDeep, cfg.Scan.RescanPolicy)
	assert.False(t, cfg.Scan.StrictPE)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	v := viper.New()
	v.Set("kv.type", "memcached")

	_, err := configs.Load(v)
	require.Error(t, err)

	v = viper.New()
	v.Set("upload.max_batch_size", 10)
	v.Set("upload.max_file_size", 100)

	_, err = configs.Load(v)
	require.Error(t, err, "batch ceiling below per-file ceiling must be rejected")

	v = viper.New()
	v.Set("scan.rescan_policy", "clamav")

	_, err = configs.Load(v)
	require.Error(t, err, "unknown rescan policy must be rejected")
}

func TestInitConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`
server:
  port: 9999
upload:
  max_file_size: 1024
  max_batch_size: 4096
share:
  default_expires_in: 12h
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0o600))

	require.NoError(t, configs.InitConfig(dir))

	cfg := configs.GetConfig()
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, int64(1024), cfg.Upload.MaxFileSize)
	assert.Equal(t, "12h", cfg.Share.DefaultExpiresIn)
	assert.NotNil(t, configs.GetViper())
}

func TestInitConfigWithoutFileUsesDefaults(t *testing.T) {
	require.NoError(t, configs.InitConfig(t.TempDir()))
	assert.Equal(t, configs.DefaultPort, configs.GetConfig().Server.Port)
}

func TestDSN(t *testing.T) {
	c := configs.DBConfig{Type: configs.Pg, Host: "db", Port: 5432, User: "u", Password: "p", Database: "cv", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=cv sslmode=disable", c.GetDSN())
	assert.Equal(t, "PostgreSQL", c.GetDBType())

	c.DSN = "custom"
	assert.Equal(t, "custom", c.GetDSN())
}

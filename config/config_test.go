package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestWriteConfigRoundTrip(t *testing.T) {
	home := t.TempDir()
	cfg := DefaultConfig(home)
	cfg.App.Indexer.ListenAddr = "0.0.0.0:9000"
	cfg.App.Indexer.PollInterval = 5 * time.Second
	path := filepath.Join(home, "config", "config.toml")
	require.NoError(t, WriteConfigFile(path, cfg))

	loaded := &Config{Config: DefaultCometConfig(), App: DefaultAppConfig(home)}
	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())
	require.NoError(t, v.Unmarshal(loaded))
	require.Equal(t, "0.0.0.0:9000", loaded.App.Indexer.ListenAddr)
	require.Equal(t, 5*time.Second, loaded.App.Indexer.PollInterval)
	require.True(t, loaded.App.Indexer.Enable)
	require.True(t, loaded.Instrumentation.Prometheus)
}

func TestIndexerValidation(t *testing.T) {
	cfg := DefaultAppConfig("/tmp/x")
	require.NoError(t, cfg.ValidateBasic())
	require.Equal(t, "/tmp/x/indexer.db", cfg.IndexerDBFile())

	cfg.Indexer.PollInterval = 0
	require.ErrorIs(t, cfg.ValidateBasic(), ErrInvalidIndexer)

	cfg.Indexer.Enable = false
	require.NoError(t, cfg.ValidateBasic())
}

func TestInitializeAdmin(t *testing.T) {
	home := t.TempDir()
	DefaultConfig(home)
	a, err := InitializeAdmin(home)
	require.NoError(t, err)
	require.NotEqual(t, common.Address{}, a)
	require.FileExists(t, filepath.Join(home, "config", AdminKeyFile))
}

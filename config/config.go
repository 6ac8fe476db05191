package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	authcrypto "github.com/calehh/authchain/crypto"
	"github.com/cometbft/cometbft/config"
	"github.com/cometbft/cometbft/crypto"
	"github.com/cometbft/cometbft/p2p"
	"github.com/cometbft/cometbft/privval"
	"github.com/ethereum/go-ethereum/common"
)

const (
	DefaultHomeDir  = "$HOME/.authd"
	AdminKeyFile    = "admin_priv_key"
	DefaultIndexDB  = "indexer.db"
	DefaultIndexAPI = "127.0.0.1:8080"
)

var ErrInvalidIndexer = errors.New("invalid indexer config")

// IndexerConfig drives the off-chain event indexer started next to the node.
type IndexerConfig struct {
	Enable       bool          `mapstructure:"enable"`
	DBPath       string        `mapstructure:"db_path"`
	ListenAddr   string        `mapstructure:"listen_addr"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type AppConfig struct {
	Home    string         `mapstructure:"-"`
	Indexer *IndexerConfig `mapstructure:"indexer"`
}

func DefaultAppConfig(home string) *AppConfig {
	return &AppConfig{
		Home: home,
		Indexer: &IndexerConfig{
			Enable:       true,
			DBPath:       DefaultIndexDB,
			ListenAddr:   DefaultIndexAPI,
			PollInterval: 2 * time.Second,
		},
	}
}

func (c *AppConfig) DataDir() string {
	return filepath.Join(c.Home, "data")
}

// IndexerDBFile resolves a relative db_path against the home directory.
func (c *AppConfig) IndexerDBFile() string {
	if filepath.IsAbs(c.Indexer.DBPath) {
		return c.Indexer.DBPath
	}
	return filepath.Join(c.Home, c.Indexer.DBPath)
}

func (c *AppConfig) ValidateBasic() error {
	if c.Indexer == nil || !c.Indexer.Enable {
		return nil
	}
	if c.Indexer.DBPath == "" {
		return fmt.Errorf("%w: db_path is empty", ErrInvalidIndexer)
	}
	if c.Indexer.PollInterval <= 0 {
		return fmt.Errorf("%w: poll_interval must be positive", ErrInvalidIndexer)
	}
	return nil
}

type Config struct {
	*config.Config `mapstructure:",squash"`

	App *AppConfig `mapstructure:"app"`
}

func ResolveHome(home string) string {
	if len(home) == 0 {
		home = os.ExpandEnv(DefaultHomeDir)
	}
	return home
}

func DefaultConfig(home string) *Config {
	home = ResolveHome(home)
	cfg := &Config{
		DefaultCometConfig(),
		DefaultAppConfig(home),
	}
	cfg.SetRoot(home)
	_ = os.MkdirAll(filepath.Join(home, "config"), 0o755)
	return cfg
}

func (c *Config) ValidateBasic() error {
	if err := c.Config.ValidateBasic(); err != nil {
		return err
	}
	return c.App.ValidateBasic()
}

// InitializeAdmin writes a fresh secp256k1 key for the genesis admin and
// returns its address.
func InitializeAdmin(home string) (admin common.Address, err error) {
	k, err := authcrypto.GenerateKeyFile(filepath.Join(home, "config", AdminKeyFile))
	if err != nil {
		return admin, fmt.Errorf("write admin key: %w", err)
	}
	return k.Address(), nil
}

func InitializeNodeValidatorFiles(cfg *Config, privKey crypto.PrivKey) (nodeID string, pk crypto.PubKey, err error) {
	nodeKey, err := p2p.LoadOrGenNodeKey(cfg.NodeKeyFile())
	if err != nil {
		return "", nil, err
	}
	nodeID = string(nodeKey.ID())

	for _, f := range []string{cfg.PrivValidatorKeyFile(), cfg.PrivValidatorStateFile()} {
		if err := os.MkdirAll(filepath.Dir(f), 0o777); err != nil {
			return "", nil, fmt.Errorf("could not create directory %q: %w", filepath.Dir(f), err)
		}
	}

	var filePV *privval.FilePV
	if privKey == nil {
		filePV = privval.LoadOrGenFilePV(cfg.PrivValidatorKeyFile(), cfg.PrivValidatorStateFile())
	} else {
		filePV = privval.NewFilePV(privKey, cfg.PrivValidatorKeyFile(), cfg.PrivValidatorStateFile())
		filePV.Save()
	}
	pk, err = filePV.GetPubKey()
	if err != nil {
		return "", nil, err
	}
	return nodeID, pk, nil
}

// DefaultCometConfig shortens consensus timeouts for a small permissioned
// validator set and turns on the prometheus endpoint.
func DefaultCometConfig() *config.Config {
	cometConfig := config.DefaultConfig()
	cometConfig.Consensus.TimeoutPropose = time.Second * 3
	cometConfig.Consensus.TimeoutPrevote = time.Second * 1
	cometConfig.Consensus.TimeoutPrecommit = time.Second * 1
	cometConfig.Consensus.TimeoutCommit = time.Millisecond * 1200
	cometConfig.Instrumentation.Prometheus = true
	cometConfig.Instrumentation.Namespace = "authchain"
	return cometConfig
}

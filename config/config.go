package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cometbft/cometbft/config"
	"github.com/cometbft/cometbft/crypto"
	"github.com/cometbft/cometbft/p2p"
	"github.com/cometbft/cometbft/privval"
)

// Weight oracle modes. State samples chain account balances, erc20 calls
// balanceOf on an external EVM node, http polls a plain JSON endpoint.
const (
	OracleModeState = "state"
	OracleModeERC20 = "erc20"
	OracleModeHTTP  = "http"
)

type AgoraAppConfig struct {
	Home          string `mapstructure:"-"`
	TimeoutCommit uint64 `mapstructure:"-"`

	OracleMode   string `mapstructure:"oracle_mode"`
	OracleRPC    string `mapstructure:"oracle_rpc"`
	OracleToken  string `mapstructure:"oracle_token"`
	WeightBits   uint   `mapstructure:"weight_bits"`
	PortalListen string `mapstructure:"portal_listen"`
	PortalDB     string `mapstructure:"portal_db"`
}

func NewAgoraAppConfig(home string) *AgoraAppConfig {
	return &AgoraAppConfig{
		Home:       home,
		OracleMode: OracleModeState,
		WeightBits: 8,
	}
}

// UnitsPerPower is the balance behind one unit of consensus power. Height
// is threaded through so the rate can change at a fork height.
func UnitsPerPower(height uint64) uint64 {
	return 1000000000
}

func PowerPerBalance(balance uint64, height uint64) int64 {
	return int64(balance / UnitsPerPower(height))
}

type Config struct {
	*config.Config `mapstructure:",squash"`

	App *AgoraAppConfig `mapstructure:"app"`
}

func DefaultConfig(home string) *Config {
	if len(home) == 0 {
		home = os.ExpandEnv("$HOME/.agora")
	}
	config := &Config{
		DefaultAgoraCometConfig(),
		NewAgoraAppConfig(home),
	}
	config.RootDir = home
	_ = os.MkdirAll(home+"/config", 0755)
	return config
}

func NewAgoraConfig(home string) *Config {
	if len(home) == 0 {
		home = os.ExpandEnv("$HOME/.agora")
	}
	_ = os.MkdirAll(home+"/config", 0755)
	config := &Config{
		DefaultAgoraCometConfig(),
		NewAgoraAppConfig(home),
	}
	config.RootDir = home
	return config
}

func InitializeNodeValidatorFiles(config *Config, privKey crypto.PrivKey) (nodeID string, pk crypto.PubKey, err error) {
	nodeKey, err := p2p.LoadOrGenNodeKey(config.NodeKeyFile())
	if err != nil {
		return "", nil, err
	}
	nodeID = string(nodeKey.ID())

	pvKeyFile := config.PrivValidatorKeyFile()
	if err := os.MkdirAll(filepath.Dir(pvKeyFile), 0o777); err != nil {
		return "", nil, fmt.Errorf("could not create directory %q: %w", filepath.Dir(pvKeyFile), err)
	}

	pvStateFile := config.PrivValidatorStateFile()
	if err := os.MkdirAll(filepath.Dir(pvStateFile), 0o777); err != nil {
		return "", nil, fmt.Errorf("could not create directory %q: %w", filepath.Dir(pvStateFile), err)
	}

	var filePV *privval.FilePV
	if privKey == nil {
		filePV = privval.LoadOrGenFilePV(pvKeyFile, pvStateFile)
	} else {
		filePV = privval.NewFilePV(privKey, pvKeyFile, pvStateFile)
		filePV.Save()
	}
	pukey, err := filePV.GetPubKey()
	if err != nil {
		return "", nil, err
	}

	return nodeID, pukey, nil
}

func InitializeNodeOnly(config *Config) {
	_, err := p2p.LoadOrGenNodeKey(config.NodeKeyFile())
	if err != nil {
		return
	}

	pvKeyFile := config.PrivValidatorKeyFile()
	if err := os.MkdirAll(filepath.Dir(pvKeyFile), 0o777); err != nil {
		return
	}

	pvStateFile := config.PrivValidatorStateFile()
	if err := os.MkdirAll(filepath.Dir(pvStateFile), 0o777); err != nil {
		return
	}
	privval.LoadOrGenFilePV(pvKeyFile, pvStateFile)
	os.Remove(pvKeyFile)
}

func DefaultAgoraCometConfig() *config.Config {
	cometConfig := config.DefaultConfig()
	cometConfig.Consensus.TimeoutPropose = time.Second * 10
	cometConfig.Consensus.TimeoutPrevote = time.Second * 1
	cometConfig.Consensus.TimeoutPrecommit = time.Second * 1
	cometConfig.Consensus.TimeoutCommit = time.Millisecond * 1200
	return cometConfig
}

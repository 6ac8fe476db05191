package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/calehh/authchain/app"
	app_config "github.com/calehh/authchain/config"
	"github.com/calehh/authchain/types"
	cmttypes "github.com/cometbft/cometbft/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

// validatorPower is the voting power of the single genesis validator. The
// validator set is fixed at genesis.
const validatorPower = 1000

type printInfo struct {
	ChainID    string          `json:"chain_id"`
	NodeID     string          `json:"node_id"`
	Admin      string          `json:"admin"`
	AppMessage json.RawMessage `json:"app_message"`
}

func displayInfo(info printInfo) error {
	out, err := json.MarshalIndent(info, "", " ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(os.Stderr, "%s\n", out)
	return err
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize private validator, p2p, genesis, and application configuration files",
	Long: `Initialize the validator's and node's configuration files. The genesis
app_state carries every protocol parameter and names the admin; when --admin
is empty a fresh admin key is written under config/.`,
	Args: cobra.NoArgs,
	RunE: initRun,
}

func init() {
	initCmd.Flags().BoolP(types.FlagOverwrite, "o", false, "overwrite the genesis.json file")
	initCmd.Flags().String(types.FlagChainID, "", "genesis file chain-id, if left blank will be randomly created")
	initCmd.Flags().String(types.FlagHome, "", "home directory")
	initCmd.Flags().String(types.FlagAdmin, "", "admin address, if left blank a key is generated")
}

func initRun(cmd *cobra.Command, args []string) error {
	home, _ := cmd.Flags().GetString(types.FlagHome)
	chainID, _ := cmd.Flags().GetString(types.FlagChainID)
	overwrite, _ := cmd.Flags().GetBool(types.FlagOverwrite)
	adminHex, _ := cmd.Flags().GetString(types.FlagAdmin)

	if chainID == "" {
		chainID = fmt.Sprintf("auth-chain-%v", rand.Uint64())
	}
	appConfig := app_config.DefaultConfig(home)
	genFile := appConfig.GenesisFile()
	if _, err := os.Stat(genFile); err == nil && !overwrite {
		return fmt.Errorf("genesis file %s already exists, use --%s", genFile, types.FlagOverwrite)
	}

	nodeID, pk, err := app_config.InitializeNodeValidatorFiles(appConfig, nil)
	if err != nil {
		return err
	}

	var admin common.Address
	if adminHex != "" {
		if !common.IsHexAddress(adminHex) {
			return fmt.Errorf("invalid admin address %q", adminHex)
		}
		admin = common.HexToAddress(adminHex)
	} else if admin, err = app_config.InitializeAdmin(appConfig.RootDir); err != nil {
		return err
	}

	appState, err := json.MarshalIndent(app.DefaultAppState(admin), "", "  ")
	if err != nil {
		return err
	}
	appGenesis := &cmttypes.GenesisDoc{
		GenesisTime:     time.Now(),
		ChainID:         chainID,
		ConsensusParams: cmttypes.DefaultConsensusParams(),
		InitialHeight:   1,
		Validators:      []cmttypes.GenesisValidator{{Address: pk.Address(), PubKey: pk, Power: validatorPower}},
		AppState:        appState,
	}
	if err = appGenesis.ValidateAndComplete(); err != nil {
		return fmt.Errorf("invalid genesis: %w", err)
	}
	if err = appGenesis.SaveAs(genFile); err != nil {
		return fmt.Errorf("failed to export genesis file: %w", err)
	}
	if err = app_config.WriteConfigFile(filepath.Join(appConfig.RootDir, "config", "config.toml"), appConfig); err != nil {
		return err
	}
	return displayInfo(printInfo{ChainID: chainID, NodeID: nodeID, Admin: admin.Hex(), AppMessage: appState})
}

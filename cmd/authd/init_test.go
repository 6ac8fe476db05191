package main

import (
	"path/filepath"
	"testing"

	"github.com/calehh/authchain/app"
	"github.com/calehh/authchain/types"
	"github.com/calehh/authchain/verification"
	cmttypes "github.com/cometbft/cometbft/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWritesGenesis(t *testing.T) {
	home := t.TempDir()
	admin := common.HexToAddress("0xa1")
	require.NoError(t, initCmd.Flags().Set(types.FlagHome, home))
	require.NoError(t, initCmd.Flags().Set(types.FlagChainID, "auth-init-test"))
	require.NoError(t, initCmd.Flags().Set(types.FlagAdmin, admin.Hex()))
	require.NoError(t, initRun(initCmd, nil))

	gen, err := cmttypes.GenesisDocFromFile(filepath.Join(home, "config", "genesis.json"))
	require.NoError(t, err)
	assert.Equal(t, "auth-init-test", gen.ChainID)
	assert.Equal(t, int64(1), gen.InitialHeight)
	require.Len(t, gen.Validators, 1)
	assert.Equal(t, int64(validatorPower), gen.Validators[0].Power)

	as, err := app.ParseAppState(gen.AppState)
	require.NoError(t, err)
	assert.Equal(t, admin, as.Admin)
	assert.Equal(t, verification.DefaultParams(), as.Verification)

	assert.Error(t, initRun(initCmd, nil), "existing genesis needs --overwrite")
	require.NoError(t, initCmd.Flags().Set(types.FlagOverwrite, "true"))
	assert.NoError(t, initRun(initCmd, nil))
}

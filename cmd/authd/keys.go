package main

import (
	"encoding/hex"
	"fmt"

	app_config "github.com/calehh/authchain/config"
	authcrypto "github.com/calehh/authchain/crypto"
	"github.com/cometbft/cometbft/privval"
	"github.com/spf13/cobra"
)

type keysArguments struct {
	Home      string
	Key       string
	Validator bool
}

var keysArgs keysArguments

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage secp256k1 account keys",
}

var keysNewCmd = &cobra.Command{
	Use:   "new <path>",
	Short: "Write a fresh account key to path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := authcrypto.GenerateKeyFile(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("address:%s\npubkey:%s\n", k.Address().Hex(), hex.EncodeToString(k.PublicKey()))
		return nil
	},
}

var keysShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the address and public key of a key file",
	Args:  cobra.NoArgs,
	RunE:  keysShowRun,
}

func init() {
	homeFlag(keysShowCmd, &keysArgs.Home)
	keyFlag(keysShowCmd, &keysArgs.Key)
	keysShowCmd.Flags().BoolVarP(&keysArgs.Validator, "validator", "", false, "show the consensus key instead")
	keysCmd.AddCommand(keysNewCmd, keysShowCmd)
}

func keysShowRun(cmd *cobra.Command, args []string) error {
	if keysArgs.Validator {
		cfg := app_config.DefaultConfig(keysArgs.Home)
		filePV := privval.LoadFilePV(cfg.PrivValidatorKeyFile(), cfg.PrivValidatorStateFile())
		pubKey, err := filePV.GetPubKey()
		if err != nil {
			return fmt.Errorf("get public key: %w", err)
		}
		fmt.Printf("address:%s\npubkey:%s\n", pubKey.Address(), hex.EncodeToString(pubKey.Bytes()))
		return nil
	}
	k, err := authcrypto.LoadKeyFile(resolveKeyPath(keysArgs.Home, keysArgs.Key))
	if err != nil {
		return err
	}
	fmt.Printf("address:%s\npubkey:%s\n", k.Address().Hex(), hex.EncodeToString(k.PublicKey()))
	return nil
}

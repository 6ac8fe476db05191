package main

import (
	"encoding/json"
	"fmt"

	authcrypto "github.com/calehh/authchain/crypto"
	"github.com/calehh/authchain/oracle"
	"github.com/calehh/authchain/tx"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
)

type attestArguments struct {
	Home    string
	Key     string
	ChainID int64
	Payload string
}

var attestArgs attestArguments

var attestCmd = &cobra.Command{
	Use:   "attest",
	Short: "Oracle source tooling",
}

var attestSignCmd = &cobra.Command{
	Use:   "sign",
	Short: "Sign an attestation as an oracle source",
	Long: `Sign an attestation with the EIP-712 domain of the oracle and print a
submit-attestation payload. Any account may relay the payload.`,
	Args: cobra.NoArgs,
	RunE: attestSignRun,
}

func init() {
	homeFlag(attestSignCmd, &attestArgs.Home)
	keyFlag(attestSignCmd, &attestArgs.Key)
	attestSignCmd.Flags().Int64VarP(&attestArgs.ChainID, "eip-chain-id", "c", oracle.DefaultParams().ChainID, "oracle domain chain id")
	attestSignCmd.Flags().StringVarP(&attestArgs.Payload, "payload", "p", "", "attestation json")
	attestCmd.AddCommand(attestSignCmd)
}

func attestSignRun(cmd *cobra.Command, args []string) error {
	var att oracle.Attestation
	if err := json.Unmarshal([]byte(attestArgs.Payload), &att); err != nil {
		return fmt.Errorf("decode attestation: %w", err)
	}
	key, err := authcrypto.LoadKeyFile(resolveKeyPath(attestArgs.Home, attestArgs.Key))
	if err != nil {
		return err
	}
	sig, err := oracle.SignAttestation(key.PrivateKey(), attestArgs.ChainID, &att)
	if err != nil {
		return err
	}
	fmt.Printf("source:%s\nsignature:%s\n", key.Address().Hex(), hexutil.Encode(sig))
	out, err := json.Marshal(&tx.SubmitAttestationTx{Attestation: att, Signature: sig})
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/calehh/authchain/app"
	authcrypto "github.com/calehh/authchain/crypto"
	"github.com/calehh/authchain/tx"
	"github.com/cometbft/cometbft/rpc/client/http"
	"github.com/spf13/cobra"
)

type txArguments struct {
	Url     string
	Home    string
	Key     string
	Payload string
	Nonce   uint64
	NoSend  bool
}

var txArgs txArguments

var txCmd = &cobra.Command{
	Use:   "tx <type>",
	Short: "Sign and broadcast a transaction",
	Long: "Sign and broadcast a transaction. The payload is the JSON body of the\n" +
		"transaction type, one of:\n  " + strings.Join(tx.TxTypeNames(), "\n  "),
	Args: cobra.ExactArgs(1),
	RunE: txRun,
}

func init() {
	urlFlag(txCmd, &txArgs.Url)
	homeFlag(txCmd, &txArgs.Home)
	keyFlag(txCmd, &txArgs.Key)
	txCmd.Flags().StringVarP(&txArgs.Payload, "payload", "p", "{}", "transaction payload json")
	txCmd.Flags().Uint64VarP(&txArgs.Nonce, "nonce", "n", 0, "account nonce, queried from the node when unset")
	txCmd.Flags().BoolVarP(&txArgs.NoSend, "nosend", "", false, "print the signed transaction without sending it")
}

func newClient(url string) (*http.HTTP, error) {
	cli, err := http.New(url, "/websocket")
	if err != nil {
		return nil, fmt.Errorf("new client: %w", err)
	}
	return cli, nil
}

func txRun(cmd *cobra.Command, args []string) error {
	tp := tx.ParseAuthTxType(args[0])
	if tp == tx.AuthTxTypeUnknown {
		return fmt.Errorf("%w: %s", tx.ErrUnsupportedTxType, args[0])
	}
	payload, err := tx.NewPayload(tp)
	if err != nil {
		return err
	}
	if err = json.Unmarshal([]byte(txArgs.Payload), payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	key, err := authcrypto.LoadKeyFile(resolveKeyPath(txArgs.Home, txArgs.Key))
	if err != nil {
		return err
	}
	cli, err := newClient(txArgs.Url)
	if err != nil {
		return err
	}
	ctx := context.Background()
	gres, err := cli.Genesis(ctx)
	if err != nil {
		return fmt.Errorf("get chain genesis: %w", err)
	}
	nonce := txArgs.Nonce
	if !cmd.Flags().Changed("nonce") {
		var act app.AccountView
		if err = queryJSON(ctx, cli, "/accounts/", key.Address().Bytes(), &act); err != nil {
			return err
		}
		nonce = act.Nonce
	}

	btx := &tx.AuthTx{
		Version: tx.AuthTxVersion1,
		Type:    tp,
		Nonce:   nonce,
		Tx:      payload,
	}
	if err = btx.Sign(key.PrivateKey(), gres.Genesis.ChainID); err != nil {
		return fmt.Errorf("sign tx: %w", err)
	}
	if err = btx.ValidateBasic(); err != nil {
		return err
	}
	dat, err := tx.MarshalAuthTx(btx)
	if err != nil {
		return err
	}
	if txArgs.NoSend {
		fmt.Println(string(dat))
		return nil
	}
	res, err := cli.BroadcastTxSync(ctx, dat)
	if err != nil {
		return fmt.Errorf("broadcast tx: %w", err)
	}
	out, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(out))
	if res.Code != 0 {
		return fmt.Errorf("tx rejected: %s", res.Log)
	}
	return nil
}

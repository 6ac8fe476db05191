package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/calehh/authchain/app"
	"github.com/cometbft/cometbft/rpc/client/http"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
)

var queryUrl string

var queryCmd = &cobra.Command{
	Use:   "query <store> <key>",
	Short: "Query committed application state",
	Long: `Query committed application state. Stores and key formats:
  params      module name (revenue, reputation, oracle, verification, arbitration)
  disputes    decimal dispute id
  brands      <brand address>:<retailer address>
  accounts, verifiers, retailers, sources, nonces    hex address
  requests, aggregates                               hex request id`,
	Args: cobra.ExactArgs(2),
	RunE: queryRun,
}

func init() {
	urlFlag(queryCmd, &queryUrl)
}

func queryKey(store, key string) ([]byte, error) {
	switch store {
	case "params":
		return []byte(key), nil
	case "disputes":
		id, err := strconv.ParseUint(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("dispute id: %w", err)
		}
		return app.DisputeQueryKey(id), nil
	case "brands":
		brand, retailer, ok := strings.Cut(key, ":")
		if !ok || !common.IsHexAddress(brand) || !common.IsHexAddress(retailer) {
			return nil, errors.New("brands key must be <brand>:<retailer>")
		}
		return append(common.HexToAddress(brand).Bytes(), common.HexToAddress(retailer).Bytes()...), nil
	default:
		if !strings.HasPrefix(key, "0x") {
			key = "0x" + key
		}
		return hexutil.Decode(key)
	}
}

func queryJSON(ctx context.Context, cli *http.HTTP, path string, key []byte, out any) error {
	res, err := cli.ABCIQuery(ctx, path, key)
	if err != nil {
		return fmt.Errorf("query %s: %w", path, err)
	}
	if res.Response.Code != 0 {
		return fmt.Errorf("query %s: code %d %s", path, res.Response.Code, res.Response.Log)
	}
	return json.Unmarshal(res.Response.Value, out)
}

func queryRun(cmd *cobra.Command, args []string) error {
	store := strings.Trim(args[0], "/")
	key, err := queryKey(store, args[1])
	if err != nil {
		return err
	}
	cli, err := newClient(queryUrl)
	if err != nil {
		return err
	}
	var out json.RawMessage
	if err = queryJSON(context.Background(), cli, "/"+store+"/", key, &out); err != nil {
		return err
	}
	pretty, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(pretty))
	return nil
}

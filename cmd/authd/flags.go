package main

import (
	"path/filepath"

	app_config "github.com/calehh/authchain/config"
	"github.com/calehh/authchain/types"
	"github.com/spf13/cobra"
)

func urlFlag(cmd *cobra.Command, url *string) {
	cmd.Flags().StringVarP(url, "url", "u", "http://127.0.0.1:26657", "authd rpc url")
}

func homeFlag(cmd *cobra.Command, home *string) {
	cmd.Flags().StringVarP(home, types.FlagHome, "d", "", "home directory")
}

// keyFlag defaults to the admin key written by init.
func keyFlag(cmd *cobra.Command, path *string) {
	cmd.Flags().StringVarP(path, "key", "k", "", "private key file, defaults to the admin key under --home")
}

func resolveKeyPath(home, path string) string {
	if path != "" {
		return path
	}
	return filepath.Join(app_config.ResolveHome(home), "config", app_config.AdminKeyFile)
}

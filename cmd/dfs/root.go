package main

import (
	"github.com/spf13/cobra"

	"github.com/jabolina/go-dfs/internal/config"
)

var cfg = config.Default()

var rootCmd = &cobra.Command{
	Use:   "dfs",
	Short: "Run a tracker or peer node in the distributed file system",
}

func init() {
	cfg.BindFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(trackerCmd)
	rootCmd.AddCommand(peerCmd)
}

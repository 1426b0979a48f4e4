package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jabolina/go-dfs/internal/config"
	"github.com/jabolina/go-dfs/pkg/dfs/definition"
	"github.com/jabolina/go-dfs/pkg/dfs/node"
)

var trackerCmd = &cobra.Command{
	Use:   "tracker",
	Short: "Start this node as the cluster tracker",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.ApplyEnv(); err != nil {
			return err
		}
		log := definition.NewDefaultLogger()
		log.ToggleDebug(cfg.Verbose)

		n, err := node.New(trackerNodeConfig(cfg), log)
		if err != nil {
			return err
		}
		if err := n.Start(); err != nil {
			return err
		}
		color.Green("tracker listening on %s:%d", cfg.Hostname, cfg.Port)

		waitForSignal()
		color.Yellow("shutting down tracker")
		return n.Shutdown()
	},
}

func trackerNodeConfig(c config.Config) node.Config {
	return node.Config{
		Hostname:         c.Hostname,
		Port:             c.Port,
		Name:             c.Name,
		IsTracker:        true,
		Password:         c.Password,
		MaxFileSize:      c.MaxFileSize,
		MaxFileSysSize:   c.MaxFileSysSize,
		StorageRoot:      c.StorageRoot,
		DBPath:           c.DBPath,
		ReplicationLevel: c.ReplicationLevel,
		DialTimeout:      c.DialTimeout,
		CallTimeout:      c.CallTimeout,
	}
}

func waitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}

package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jabolina/go-dfs/internal/config"
	"github.com/jabolina/go-dfs/pkg/dfs/definition"
	"github.com/jabolina/go-dfs/pkg/dfs/node"
)

var peerCmd = &cobra.Command{
	Use:   "peer",
	Short: "Start this node as a peer and open an interactive shell",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.ApplyEnv(); err != nil {
			return err
		}
		log := definition.NewDefaultLogger()
		log.ToggleDebug(cfg.Verbose)

		n, err := node.New(peerNodeConfig(cfg), log)
		if err != nil {
			return err
		}
		if err := n.Start(); err != nil {
			return err
		}
		color.Green("connected to tracker at %s:%d", cfg.TrackerHost, cfg.TrackerPort)

		defer func() {
			if err := n.Disconnect(true); err != nil {
				color.Red("disconnect: %v", err)
			}
			n.Shutdown()
		}()

		runREPL(n)
		return nil
	},
}

func peerNodeConfig(c config.Config) node.Config {
	return node.Config{
		Hostname:       c.Hostname,
		Port:           c.Port,
		Name:           c.Name,
		IsTracker:      false,
		TrackerHost:    c.TrackerHost,
		TrackerPort:    c.TrackerPort,
		Password:       c.Password,
		MaxFileSize:    c.MaxFileSize,
		MaxFileSysSize: c.MaxFileSysSize,
		StorageRoot:    c.StorageRoot,
		DBPath:         c.DBPath,
		DialTimeout:    c.DialTimeout,
		CallTimeout:    c.CallTimeout,
	}
}

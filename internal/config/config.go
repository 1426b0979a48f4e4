// Package config loads the flag/env-driven settings a dfs tracker or
// peer process needs to start a Node, generalized from the teacher
// pack's config.Config pattern (plain struct, defaults function, no
// magic) onto cobra/pflag-bound fields instead of a YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
)

// Config holds everything cmd/dfs needs to build a node.Config, shared
// by both the tracker and peer subcommands; fields that only apply to
// one role are simply left at their zero value by the other.
type Config struct {
	Hostname string
	Port     int
	Name     string

	TrackerHost string
	TrackerPort int
	Password    string

	StorageRoot string
	DBPath      string

	MaxFileSize      int64
	MaxFileSysSize   int64
	ReplicationLevel int

	DialTimeout time.Duration
	CallTimeout time.Duration

	Verbose bool
}

// Default returns the baseline settings, overridable by flags and then
// by environment variables (a set DFS_ variable wins over its flag, a
// flag wins over the default).
func Default() Config {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "127.0.0.1"
	}
	return Config{
		Hostname:         "0.0.0.0",
		Port:             9631,
		Name:             hostname,
		TrackerHost:      "127.0.0.1",
		TrackerPort:      9630,
		Password:         "12345",
		StorageRoot:      defaultStorageRoot(),
		DBPath:           defaultDBPath(),
		MaxFileSize:      100 << 20,
		MaxFileSysSize:   10 << 30,
		ReplicationLevel: 3,
		DialTimeout:      5 * time.Second,
		CallTimeout:      10 * time.Second,
	}
}

func defaultStorageRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".dfs/storage"
	}
	return home + "/.dfs/storage"
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".dfs/dfs.db"
	}
	return home + "/.dfs/dfs.db"
}

// BindFlags registers every field on fs, seeding each flag's default
// from cfg so a caller can apply env overrides beforehand.
func (cfg *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&cfg.Hostname, "host", cfg.Hostname, "address this node listens on")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "port this node listens on")
	fs.StringVar(&cfg.Name, "name", cfg.Name, "this node's display name")
	fs.StringVar(&cfg.TrackerHost, "tracker-host", cfg.TrackerHost, "tracker address (peer mode only)")
	fs.IntVar(&cfg.TrackerPort, "tracker-port", cfg.TrackerPort, "tracker port (peer mode only)")
	fs.StringVar(&cfg.Password, "password", cfg.Password, "shared cluster password")
	fs.StringVar(&cfg.StorageRoot, "storage", cfg.StorageRoot, "directory holding file contents")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "path to the sqlite metadata database")
	fs.Int64Var(&cfg.MaxFileSize, "max-file-size", cfg.MaxFileSize, "largest single file this node accepts, in bytes")
	fs.Int64Var(&cfg.MaxFileSysSize, "max-capacity", cfg.MaxFileSysSize, "total storage capacity this node advertises, in bytes")
	fs.IntVar(&cfg.ReplicationLevel, "replication", cfg.ReplicationLevel, "tracker replication fan-out (tracker mode only)")
	fs.DurationVar(&cfg.DialTimeout, "dial-timeout", cfg.DialTimeout, "timeout dialing a peer")
	fs.DurationVar(&cfg.CallTimeout, "call-timeout", cfg.CallTimeout, "timeout waiting for an RPC reply")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "enable debug logging")
}

// ApplyEnv overlays DFS_-prefixed environment variables on top of
// whatever flags already set, so a process manager can configure a
// node without rewriting its argv.
func (cfg *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv("DFS_PASSWORD"); ok {
		cfg.Password = v
	}
	if v, ok := os.LookupEnv("DFS_TRACKER_HOST"); ok {
		cfg.TrackerHost = v
	}
	if v, ok := os.LookupEnv("DFS_TRACKER_PORT"); ok {
		port, err := parsePort(v)
		if err != nil {
			return fmt.Errorf("config: DFS_TRACKER_PORT: %w", err)
		}
		cfg.TrackerPort = port
	}
	if v, ok := os.LookupEnv("DFS_STORAGE"); ok {
		cfg.StorageRoot = v
	}
	if v, ok := os.LookupEnv("DFS_DB"); ok {
		cfg.DBPath = v
	}
	return nil
}

func parsePort(v string) (int, error) {
	var port int
	_, err := fmt.Sscanf(v, "%d", &port)
	return port, err
}

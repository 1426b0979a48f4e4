// Command dfs runs a tracker or peer node and, for a peer, an
// interactive REPL for read/write/delete/move/ls/archive, grounded on
// the pack's cobra-based CLI front ends.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/jabolina/go-dfs/pkg/dfs/node"
)

// runREPL drives a line-oriented shell over a connected peer node,
// grounded on spec.md's own scenario notation (write/read/arch/ls/
// rm/mv/conn/disco/quit), generalized into cobra-adjacent subcommands
// of a single running process instead of one-shot CLI invocations.
func runREPL(n *node.Node) {
	prompt := color.New(color.FgCyan).Sprint("dfs> ")
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Print(prompt)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			if quit := dispatchLine(n, line); quit {
				return
			}
		}
		fmt.Print(prompt)
	}
}

func dispatchLine(n *node.Node, line string) (quit bool) {
	fields := strings.Fields(line)
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case "quit", "exit":
		return true
	case "write":
		handleWrite(n, args)
	case "read", "cat":
		handleRead(n, args)
	case "arch", "archive":
		handleArchive(n, args)
	case "ls":
		handleLs(n, args)
	case "rm", "delete":
		handleDelete(n, args)
	case "mv", "move":
		handleMove(n, args)
	case "conn", "connect":
		if err := n.Connect(); err != nil {
			color.Red("connect: %v", err)
		}
	case "disco", "disconnect":
		if err := n.Disconnect(true); err != nil {
			color.Red("disconnect: %v", err)
		}
	case "help":
		printHelp()
	default:
		color.Yellow("unknown command %q, try 'help'", cmd)
	}
	return false
}

func handleWrite(n *node.Node, args []string) {
	if len(args) < 2 {
		color.Yellow("usage: write <path> <text>")
		return
	}
	path, text := args[0], strings.Join(args[1:], " ")
	if err := n.Write(path, []byte(text), 0); err != nil {
		color.Red("write: %v", err)
		return
	}
	color.Green("wrote %d bytes to %s", len(text), path)
}

func handleRead(n *node.Node, args []string) {
	if len(args) < 1 {
		color.Yellow("usage: read <path>")
		return
	}
	data, err := n.Read(args[0], 0, -1)
	if err != nil {
		color.Red("read: %v", err)
		return
	}
	fmt.Println(string(data))
}

func handleArchive(n *node.Node, args []string) {
	if len(args) < 1 {
		color.Yellow("usage: arch <path>")
		return
	}
	ok, err := n.Archive(args[0])
	if err != nil {
		color.Red("archive: %v", err)
		return
	}
	if !ok {
		color.Yellow("tracker refused to archive %s", args[0])
		return
	}
	color.Green("archived %s", args[0])
}

func handleLs(n *node.Node, args []string) {
	dir := ""
	if len(args) > 0 {
		dir = args[0]
	}
	files, err := n.Ls(dir)
	if err != nil {
		color.Red("ls: %v", err)
		return
	}
	for _, f := range files {
		fmt.Printf("%-40s v%-4d %8d bytes\n", f.Path, f.LatestVersion, f.Size)
	}
}

func handleDelete(n *node.Node, args []string) {
	if len(args) < 1 {
		color.Yellow("usage: rm <path>")
		return
	}
	ok, err := n.Delete(args[0])
	if err != nil {
		color.Red("delete: %v", err)
		return
	}
	if !ok {
		color.Yellow("tracker refused to delete %s", args[0])
		return
	}
	color.Green("deleted %s", args[0])
}

func handleMove(n *node.Node, args []string) {
	if len(args) < 2 {
		color.Yellow("usage: mv <src> <dst>")
		return
	}
	ok, err := n.Move(args[0], args[1])
	if err != nil {
		color.Red("move: %v", err)
		return
	}
	if !ok {
		color.Yellow("tracker refused to move %s -> %s", args[0], args[1])
		return
	}
	color.Green("moved %s -> %s", args[0], args[1])
}

func printHelp() {
	fmt.Println(`commands:
  write <path> <text>   write (or overwrite) a file
  read <path>           print a file's content
  arch <path>           snapshot a new version
  ls [dir]              list known files
  rm <path>             delete a file
  mv <src> <dst>        rename a file
  conn                  reconnect to the tracker
  disco                 disconnect, waiting on unreplicated files
  quit                  exit`)
}

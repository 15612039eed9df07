// Command coredb-cli is an interactive client for a running coredbd: it
// reads one statement per line, sends it to the server, and prints back
// the NUL-terminated reply. Grounded on leftmike-maho.v1's repl/interact.go
// for peterh/liner wiring (prompt, persistent history file) and on the
// teacher's main.go for the bare "db> " prompt convention, lifted from a
// stdin REPL driving an in-process VM onto a REPL driving a TCP socket.
package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"
)

const historyFile = ".coredb_history"

var rootCmd = &cobra.Command{
	Use:   "coredb-cli [address]",
	Short: "Connect to a CoreDB server",
	Args:  cobra.MaximumNArgs(1),
	RunE:  run,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	addr := "127.0.0.1:5433"
	if len(args) == 1 {
		addr = args[0]
	}

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("coredb-cli: connecting to %s: %w", addr, err)
	}
	defer conn.Close()
	reader := bufio.NewReader(conn)

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	if f, err := os.Open(historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("coredb-cli: connected to %s\n", addr)
	for {
		input, err := line.Prompt("coredb> ")
		if err != nil { // EOF (Ctrl+D) or Ctrl+C
			break
		}
		stmt := strings.TrimSpace(input)
		if stmt == "" {
			continue
		}
		line.AppendHistory(stmt)

		if stmt == "exit" || stmt == "quit" {
			fmt.Fprintln(conn, "exit")
			break
		}

		if _, err := fmt.Fprintln(conn, stmt); err != nil {
			return fmt.Errorf("coredb-cli: sending statement: %w", err)
		}
		reply, err := readReply(reader)
		if err != nil {
			return fmt.Errorf("coredb-cli: reading reply: %w", err)
		}
		fmt.Print(reply)
	}

	if f, err := os.Create(historyFile); err != nil {
		fmt.Fprintf(os.Stderr, "coredb-cli: writing history file %s: %s\n", historyFile, err)
	} else {
		line.WriteHistory(f)
		f.Close()
	}
	return nil
}

// readReply reads bytes up to and including the wire protocol's trailing
// NUL byte, returning everything before it.
func readReply(r *bufio.Reader) (string, error) {
	text, err := r.ReadString(0)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(text, "\x00"), nil
}

// Command coredbd is the CoreDB server process: it opens (or initializes)
// a database directory, runs crash recovery, and serves the wire protocol
// over TCP until interrupted. Grounded on the teacher's main.go for the
// overall open-engine-then-loop shape, restructured around cobra/pflag the
// way leftmike-maho.v1's cmd/maho.go and cmd/start.go wire flags, config,
// and a signal-driven shutdown for their own server command.
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"coredb/internal/buffer"
	"coredb/internal/catalog"
	"coredb/internal/config"
	"coredb/internal/coredblog"
	"coredb/internal/lock"
	"coredb/internal/recovery"
	"coredb/internal/server"
	"coredb/internal/txn"
	"coredb/internal/wal"
)

var log = coredblog.Component("coredbd")

var (
	listenAddr string
	logLevel   string
	outputFile string
)

var rootCmd = &cobra.Command{
	Use:   "coredbd <db-directory>",
	Short: "Run the CoreDB server",
	Args:  cobra.ExactArgs(1),
	RunE:  run,
}

func init() {
	fs := rootCmd.Flags()
	fs.StringVar(&listenAddr, "listen", "", "address to listen on (overrides coredb.toml)")
	fs.StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn, error (overrides coredb.toml)")
	fs.StringVar(&outputFile, "output-file", "", "file to duplicate query results into")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	dataDir := args[0]

	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		if err := catalog.CreateDB(dataDir); err != nil {
			return fmt.Errorf("coredbd: initializing %s: %w", dataDir, err)
		}
		log.WithField("dir", dataDir).Info("initialized new database")
	}

	cfg, err := config.Load(dataDir)
	if err != nil {
		return fmt.Errorf("coredbd: %w", err)
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	coredblog.SetLevel(cfg.LogLevel)

	pool := buffer.New(cfg.BufferPoolSize)
	walMgr, err := wal.Open(walPath(dataDir), cfg.LogBufferBytes)
	if err != nil {
		return fmt.Errorf("coredbd: opening log: %w", err)
	}
	pool.SetWALSource(walMgr)

	cat, err := catalog.OpenDB(dataDir, pool, walMgr)
	if err != nil {
		return fmt.Errorf("coredbd: opening catalog: %w", err)
	}

	locks := lock.New()
	txns := txn.New(walMgr, locks, cat)

	log.Info("running crash recovery")
	if err := recovery.New(walMgr, cat, txns).Run(); err != nil {
		return fmt.Errorf("coredbd: recovery: %w", err)
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("coredbd: listening on %s: %w", cfg.ListenAddr, err)
	}
	srv := server.New(ln, cat, txns, walMgr, outputFile)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve() }()
	log.WithField("addr", cfg.ListenAddr).Info("coredbd listening")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)

	select {
	case <-sig:
		log.Info("interrupt received, shutting down")
	case err := <-serveErr:
		if err != nil {
			log.WithError(err).Warn("listener stopped")
		}
	}

	if err := ln.Close(); err != nil {
		log.WithError(err).Warn("closing listener")
	}
	if err := srv.Close(); err != nil {
		log.WithError(err).Warn("closing server")
	}
	if err := walMgr.Flush(); err != nil {
		log.WithError(err).Warn("flushing log")
	}
	if err := cat.CloseDB(); err != nil {
		return fmt.Errorf("coredbd: closing catalog: %w", err)
	}
	log.Info("coredbd stopped")
	return nil
}

func walPath(dataDir string) string {
	return filepath.Join(dataDir, "coredb.log")
}

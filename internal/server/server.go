// Package server implements the line-oriented wire protocol spec §6
// describes: one statement per message over a stream socket, a
// NUL-terminated textual reply, and four verbatim control messages
// (exit, crash, set output_file off, load ... into ...). Grounded on
// the teacher's REPL loop in main.go, lifted from stdin/stdout onto
// net.Conn with one goroutine per connection instead of one process
// reading stdin (spec §5/§9's "no global singletons" redesign carried
// through to the connection handler: every handler gets its own Portal,
// nothing package-level is mutated per request).
package server

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/olekukonko/tablewriter"

	"coredb/internal/catalog"
	"coredb/internal/coredblog"
	"coredb/internal/dberr"
	"coredb/internal/portal"
	"coredb/internal/txn"
	"coredb/internal/types"
	"coredb/internal/wal"
)

var log = coredblog.Component("server")

const maxLineBytes = 64 * 1024

// Server accepts connections and dispatches each to its own goroutine
// and Portal. cat, txns, and walMgr are shared across every connection,
// the same global-manager threading spec §5 calls for.
type Server struct {
	ln         net.Listener
	cat        *catalog.Catalog
	txns       *txn.Manager
	walMgr     *wal.Manager
	outputPath string

	mu      sync.Mutex
	outfile *os.File
}

// New wraps an already-listening net.Listener. outputPath is where
// results get duplicated by default ("set output_file off" silences
// this per connection); empty disables duplication entirely.
func New(ln net.Listener, cat *catalog.Catalog, txns *txn.Manager, walMgr *wal.Manager, outputPath string) *Server {
	return &Server{ln: ln, cat: cat, txns: txns, walMgr: walMgr, outputPath: outputPath}
}

// Serve accepts connections until the listener is closed.
func (s *Server) Serve() error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	addr := conn.RemoteAddr().String()
	log.WithField("client", addr).Info("connection established")

	p := portal.New(s.cat, s.txns)
	mirror := s.outputPath != ""

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, maxLineBytes), maxLineBytes)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "exit":
			log.WithField("client", addr).Info("client exit")
			return

		case line == "crash":
			log.WithField("client", addr).Warn("crash requested, flushing log and terminating")
			s.walMgr.Flush()
			os.Exit(1)

		case line == "set output_file off":
			mirror = false
			s.reply(conn, "")

		case strings.HasPrefix(line, "load "):
			s.handleLoad(conn, p, line, mirror)

		default:
			s.handleStatement(conn, p, line, mirror)
		}
	}
	log.WithField("client", addr).Info("connection closed")
}

// handleStatement runs one SQL statement and writes its rendered result
// (or error) back to the client, duplicating it to the output file
// unless mirroring has been switched off for this connection.
func (s *Server) handleStatement(conn net.Conn, p *portal.Portal, stmt string, mirror bool) {
	res, err := p.Execute(stmt)
	text := s.render(res, err)
	s.reply(conn, text)
	if mirror {
		s.mirrorToFile(text)
	}
}

// handleLoad parses `load <path> into <table>;` and runs it as a bulk
// load, bypassing the SQL parser entirely per spec §6.
func (s *Server) handleLoad(conn net.Conn, p *portal.Portal, line string, mirror bool) {
	path, table, err := parseLoadCommand(line)
	if err != nil {
		text := s.render(portal.Result{}, err)
		s.reply(conn, text)
		if mirror {
			s.mirrorToFile(text)
		}
		return
	}

	rows, err := loadCSV(s.cat, table, path)
	if err != nil {
		text := s.render(portal.Result{}, err)
		s.reply(conn, text)
		if mirror {
			s.mirrorToFile(text)
		}
		return
	}

	res, err := p.BulkLoad(table, rows)
	text := s.render(res, err)
	s.reply(conn, text)
	if mirror {
		s.mirrorToFile(text)
	}
}

// parseLoadCommand splits `load <path> into <table>;` the same way the
// teacher's client_handler locates its substrings, just with strings.Cut
// in place of raw find/substr index arithmetic.
func parseLoadCommand(line string) (path, table string, err error) {
	rest, ok := strings.CutPrefix(line, "load ")
	if !ok {
		return "", "", fmt.Errorf("server: malformed load command %q", line)
	}
	pathPart, tail, ok := strings.Cut(rest, " into ")
	if !ok {
		return "", "", fmt.Errorf("server: malformed load command %q", line)
	}
	tableName := strings.TrimSuffix(strings.TrimSpace(tail), ";")
	return strings.TrimSpace(pathPart), tableName, nil
}

// loadCSV reads a comma-separated file (header line skipped) and decodes
// each row against table's column types, grounded on the teacher's
// insert_records: one value per declared column, in column order.
func loadCSV(cat *catalog.Catalog, table, path string) ([]types.Row, error) {
	tab, _, err := cat.Table(table)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, maxLineBytes), maxLineBytes)
	if !sc.Scan() {
		return nil, fmt.Errorf("server: %s is empty", path)
	}

	var rows []types.Row
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		cells := strings.Split(line, ",")
		if len(cells) != len(tab.Cols) {
			return nil, fmt.Errorf("server: %s: expected %d columns, got %d", path, len(tab.Cols), len(cells))
		}
		row := types.NewRow()
		for i, col := range tab.Cols {
			v, err := parseCSVCell(col, strings.TrimSpace(cells[i]))
			if err != nil {
				return nil, err
			}
			row.Set(col.Name, v)
		}
		rows = append(rows, row)
	}
	return rows, sc.Err()
}

func parseCSVCell(col types.ColMeta, cell string) (any, error) {
	switch col.Type {
	case types.ColTypeInt, types.ColTypeBigInt:
		n, err := strconv.ParseInt(cell, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("server: column %q: %w", col.Name, err)
		}
		return n, nil
	case types.ColTypeFloat:
		f, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, fmt.Errorf("server: column %q: %w", col.Name, err)
		}
		return f, nil
	default:
		return cell, nil
	}
}

// render turns a Result or an error into the tabular text spec §6
// describes: on success, a tablewriter grid for query rows or a plain
// message for a write/DDL statement; on error, "abort" for a
// transaction abort (dberr.CategoryTransaction) or the error's own text.
func (s *Server) render(res portal.Result, err error) string {
	if err != nil {
		return renderError(err)
	}
	if len(res.Columns) == 0 {
		if res.Message != "" {
			return res.Message
		}
		return fmt.Sprintf("%d rows affected", res.RowsAffected)
	}

	var buf strings.Builder
	tw := tablewriter.NewWriter(&buf)
	tw.SetHeader(res.Columns)
	for _, row := range res.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = fmt.Sprintf("%v", v)
		}
		tw.Append(cells)
	}
	tw.Render()
	fmt.Fprintf(&buf, "(%d rows)\n", tw.NumLines())
	return buf.String()
}

func renderError(err error) string {
	if dberr.CategoryOf(err) == dberr.CategoryTransaction {
		return "abort"
	}
	return err.Error()
}

// reply writes text followed by the protocol's trailing NUL byte.
func (s *Server) reply(conn net.Conn, text string) {
	if _, err := conn.Write([]byte(text)); err != nil {
		return
	}
	conn.Write([]byte{0})
}

// mirrorToFile appends text to the shared output file spec §6's "set
// output_file off" silences, opening it lazily and keeping it open for
// the life of the server.
func (s *Server) mirrorToFile(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outfile == nil {
		f, err := os.OpenFile(s.outputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.WithError(err).Warn("opening output file")
			return
		}
		s.outfile = f
	}
	fmt.Fprintln(s.outfile, text)
}

// Close releases the server's own resources (not the listener, which the
// caller opened and should close itself).
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outfile != nil {
		return s.outfile.Close()
	}
	return nil
}

package wal

import (
	"sync"

	"coredb/internal/diskio"
)

// Manager owns LSN allocation and the durable log file. Grounded on
// WALManager in the teacher, generalized to a single append-only file with
// an in-memory write buffer instead of fixed-size rotating segments —
// spec §4.7 describes one append-only log, not segment rotation.
type Manager struct {
	mu            sync.Mutex
	fh            *diskio.FileHandle
	nextLSN       uint64
	persistentLSN uint64
	buf           []byte
	bufCap        int
}

// Open attaches the log manager to the file at path, creating it if absent.
// bufCapBytes bounds the in-memory append buffer before an automatic flush.
func Open(path string, bufCapBytes int) (*Manager, error) {
	fh, err := diskio.OpenFile(path)
	if err != nil {
		fh, err = diskio.CreateFile(path)
		if err != nil {
			return nil, err
		}
	}
	m := &Manager{fh: fh, nextLSN: 1, bufCap: bufCapBytes}
	return m, nil
}

// Close flushes and closes the underlying log file.
func (m *Manager) Close() error {
	if err := m.Flush(); err != nil {
		return err
	}
	return m.fh.CloseFile()
}

// Append assigns the next LSN to rec, buffers its encoded bytes, and
// returns the assigned LSN. The caller is responsible for calling Flush
// before treating the record as durable (e.g. at commit).
func (m *Manager) Append(rec Record) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	lsn := m.nextLSN
	m.nextLSN++
	rec.LSN = lsn
	m.buf = append(m.buf, rec.Encode()...)
	if len(m.buf) >= m.bufCap {
		m.flushLocked()
	}
	return lsn
}

// Flush forces the in-memory buffer to disk and advances PersistentLSN to
// the highest LSN written so far. Called at commit time (WAL rule: commit
// may not return before its COMMIT record is durable), at abort, on Close,
// and by the server's crash control message.
func (m *Manager) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushLocked()
}

func (m *Manager) flushLocked() error {
	if len(m.buf) == 0 {
		return nil
	}
	if _, err := m.fh.AppendLog(m.buf); err != nil {
		return err
	}
	if err := m.fh.Sync(); err != nil {
		return err
	}
	m.buf = m.buf[:0]
	m.persistentLSN = m.nextLSN - 1
	return nil
}

// PersistentLSN implements buffer.FlushedLSNSource: the highest LSN known
// durable on disk. The buffer pool refuses to flush a page whose page-LSN
// exceeds this.
func (m *Manager) PersistentLSN() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.persistentLSN
}

// NextLSN previews the LSN the next Append call would assign, without
// allocating it.
func (m *Manager) NextLSN() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextLSN
}

// Scan reads every durable record from the start of the log, invoking fn
// for each in LSN order. Used by the recovery manager's analyze pass.
func (m *Manager) Scan(fn func(Record, int64) error) error {
	size, err := m.fh.Size()
	if err != nil {
		return err
	}
	if size == 0 {
		return nil
	}
	buf := make([]byte, size)
	n, err := m.fh.ReadLog(buf, 0)
	if err != nil {
		return err
	}
	pos := 0
	for pos+headerSize+crcSize <= n {
		rec, recSize, err := Decode(buf[pos:n])
		if err != nil {
			break // stop at the first unreadable/torn record (end of log)
		}
		if err := fn(rec, int64(pos)); err != nil {
			return err
		}
		pos += recSize
	}
	return nil
}

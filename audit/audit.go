// Package audit provides the append-only event sink every subsystem uses
// to record security-relevant actions (§4.7): HSM provider fallback and key
// operations, cross layer transfer rollbacks, storage backend selection.
// Events never carry raw key material; producers are responsible for
// passing only opaque identifiers and metadata.
package audit

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Event is a single audit record. Fields is a flat string map so producers
// cannot accidentally embed structured secret material (a []byte key, for
// instance) without an explicit, visible encoding step.
type Event struct {
	ID        string            `json:"id"`
	Sequence  uint64            `json:"sequence"`
	Timestamp time.Time         `json:"timestamp"`
	Kind      string            `json:"kind"`
	Detail    string            `json:"detail"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// Sink is the append-only audit event store.
type Sink interface {
	Log(ctx context.Context, kind, detail string, fields map[string]string)
	Events() []Event
	Archive() (manifestSHA256 string, err error)
	Close() error
}

// MemorySink keeps events in process memory only; suitable for tests and
// for the storage_backend=memory / simulator deployment profile.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
	seq    uint64
	log    *logrus.Entry
}

func NewMemorySink(log *logrus.Logger) *MemorySink {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &MemorySink{log: log.WithField("audit_sink", "memory")}
}

func (m *MemorySink) Log(ctx context.Context, kind, detail string, fields map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	e := Event{ID: uuid.NewString(), Sequence: m.seq, Timestamp: time.Now(), Kind: kind, Detail: detail, Fields: fields}
	m.events = append(m.events, e)
	m.log.WithFields(logrus.Fields{"kind": kind, "sequence": e.Sequence}).Info(detail)
}

func (m *MemorySink) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Archive computes a sha256 manifest over the current event set, mirroring
// the teacher's AuditTrail.Archive checksum-manifest pattern, generalized
// to a backend-agnostic Sink.
func (m *MemorySink) Archive() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return manifestChecksum(m.events)
}

func (m *MemorySink) Close() error { return nil }

// FileSink appends newline-delimited JSON events to a file, durable across
// process restarts.
type FileSink struct {
	mu   sync.Mutex
	f    *os.File
	w    *bufio.Writer
	seq  uint64
	log  *logrus.Entry
	path string
}

func NewFileSink(path string, log *logrus.Logger) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open audit file %s: %w", path, err)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &FileSink{f: f, w: bufio.NewWriter(f), path: path, log: log.WithField("audit_sink", "file")}, nil
}

func (fs *FileSink) Log(ctx context.Context, kind, detail string, fields map[string]string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.seq++
	e := Event{ID: uuid.NewString(), Sequence: fs.seq, Timestamp: time.Now(), Kind: kind, Detail: detail, Fields: fields}
	raw, err := json.Marshal(e)
	if err != nil {
		fs.log.WithError(err).Error("marshal audit event")
		return
	}
	if _, err := fs.w.Write(append(raw, '\n')); err != nil {
		fs.log.WithError(err).Error("write audit event")
		return
	}
	_ = fs.w.Flush()
	fs.log.WithFields(logrus.Fields{"kind": kind, "sequence": e.Sequence}).Info(detail)
}

func (fs *FileSink) Events() []Event {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	f, err := os.Open(fs.path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []Event
	dec := json.NewDecoder(f)
	for dec.More() {
		var e Event
		if err := dec.Decode(&e); err != nil {
			break
		}
		out = append(out, e)
	}
	return out
}

func (fs *FileSink) Archive() (string, error) {
	return manifestChecksum(fs.Events())
}

func (fs *FileSink) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	_ = fs.w.Flush()
	return fs.f.Close()
}

func manifestChecksum(events []Event) (string, error) {
	raw, err := json.Marshal(events)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

var (
	defaultOnce sync.Once
	defaultSink Sink
)

// InitDefault installs the process-wide Sink singleton, mirroring the
// teacher's sync.Once-guarded audit manager initialization.
func InitDefault(sink Sink) {
	defaultOnce.Do(func() {
		defaultSink = sink
	})
}

// Default returns the process-wide Sink, defaulting to an in-memory sink
// if InitDefault was never called.
func Default() Sink {
	if defaultSink == nil {
		InitDefault(NewMemorySink(nil))
	}
	return defaultSink
}

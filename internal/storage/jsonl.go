package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"github.com/dotcommander/threadline/internal/proto"
)

const journalFileName = "threads.jsonl"

type journalEvent struct {
	Op       string         `json:"op"`
	ThreadID string         `json:"thread_id"`
	Message  *proto.Message `json:"message,omitempty"`
}

// JSONLStore is an append-only JSONL journal of thread messages.
//
// The journal is replayed into memory on open; every append is written and
// synced under a file lock before it becomes visible.
type JSONLStore struct {
	mu             sync.Mutex
	mem            *MemoryStore
	journalPath    string
	lock           *flock.Flock
	logger         *slog.Logger
	cleanupTempDir string
}

// OpenJSONL loads the journal stored in dir.
//
// The special value ":memory:" creates a temporary store (primarily used for
// tests).
func OpenJSONL(dir string, logger *slog.Logger) (*JSONLStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir, cleanupDir, err := resolveStoreDir(dir)
	if err != nil {
		return nil, fmt.Errorf("could not resolve store path: %w", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("could not create store directory: %w", err)
	}

	s := &JSONLStore{
		mem:            NewMemoryStore(),
		journalPath:    filepath.Join(dir, journalFileName),
		lock:           flock.New(filepath.Join(dir, "threads.lock")),
		logger:         logger.With("component", "store"),
		cleanupTempDir: cleanupDir,
	}
	n, err := s.load()
	if err != nil {
		return nil, err
	}
	s.logger.Debug("jsonl store opened", "path", s.journalPath, "events", n)
	return s, nil
}

func resolveStoreDir(ds string) (dir string, cleanupDir string, err error) {
	if ds == ":memory:" {
		tempDir, err := os.MkdirTemp("", "threadline-store-*")
		if err != nil {
			return "", "", fmt.Errorf("could not create temp store directory: %w", err)
		}
		return tempDir, tempDir, nil
	}
	if ds == "" {
		return "", "", errors.New("empty store path")
	}
	return ds, "", nil
}

func (s *JSONLStore) load() (int, error) {
	if err := s.lock.RLock(); err != nil {
		return 0, fmt.Errorf("could not lock journal: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	file, err := os.Open(s.journalPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("could not open journal: %w", err)
	}
	defer file.Close() //nolint:errcheck

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	n := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var evt journalEvent
		if err := json.Unmarshal([]byte(line), &evt); err != nil {
			return n, fmt.Errorf("could not parse journal event %d: %w", n+1, err)
		}
		if err := s.applyEvent(&evt); err != nil {
			return n, err
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return n, fmt.Errorf("could not scan journal: %w", err)
	}
	return n, nil
}

func (s *JSONLStore) applyEvent(evt *journalEvent) error {
	switch evt.Op {
	case "append":
		if evt.Message == nil {
			return fmt.Errorf("invalid append event: missing message")
		}
		if strings.TrimSpace(evt.ThreadID) == "" {
			return fmt.Errorf("invalid append event: %w", ErrEmptyThreadID)
		}
		s.mem.append(evt.ThreadID, []proto.Message{*evt.Message})
	default:
		return fmt.Errorf("invalid journal event op: %q", evt.Op)
	}
	return nil
}

// Load implements Store.
func (s *JSONLStore) Load(ctx context.Context, threadID string) ([]proto.Message, error) {
	return s.mem.Load(ctx, threadID)
}

// Threads implements Lister.
func (s *JSONLStore) Threads(ctx context.Context) ([]ThreadInfo, error) {
	return s.mem.Threads(ctx)
}

// Append implements Store.
func (s *JSONLStore) Append(ctx context.Context, threadID string, msgs ...proto.Message) error {
	if threadID == "" {
		return ErrEmptyThreadID
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range msgs {
		if err := enc.Encode(journalEvent{Op: "append", ThreadID: threadID, Message: &msgs[i]}); err != nil {
			return fmt.Errorf("marshal journal event: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeLocked(buf.Bytes()); err != nil {
		return err
	}
	s.mem.append(threadID, msgs)
	return nil
}

func (s *JSONLStore) writeLocked(bts []byte) error {
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock journal: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	file, err := os.OpenFile(s.journalPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer func() { _ = file.Close() }()

	if _, err := file.Write(bts); err != nil {
		return fmt.Errorf("write journal: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync journal: %w", err)
	}
	return nil
}

// Close releases temporary resources (used for :memory: stores).
func (s *JSONLStore) Close() error {
	if s.cleanupTempDir == "" {
		return nil
	}
	if err := os.RemoveAll(s.cleanupTempDir); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

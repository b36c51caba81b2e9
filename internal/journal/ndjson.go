package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"context"
	"syscall"

	"github.com/swarmguard/leviathan/internal/event"
)

// NDJSON is the newline-delimited-file journal back-end. One line per
// event, appended with an OS-level advisory lock (flock) so multiple
// processes on the same host serialize correctly, and fsync'd before the
// append is acknowledged.
type NDJSON struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	lastHash string
	seen     map[string]event.Event
}

// OpenNDJSON opens (creating if absent) the ndjson file at path and
// replays it once to recover the current chain tip.
func OpenNDJSON(path string) (*NDJSON, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal file: %w", err)
	}

	j := &NDJSON{path: path, file: f, seen: make(map[string]event.Event)}
	events, err := j.readAll()
	if err != nil {
		f.Close()
		return nil, err
	}
	for _, e := range events {
		j.seen[e.EventID] = e
	}
	if len(events) > 0 {
		j.lastHash = events[len(events)-1].Hash
	}
	return j, nil
}

func (j *NDJSON) readAll() ([]event.Event, error) {
	f, err := os.Open(j.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []event.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e event.Event
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("decode journal line: %w", err)
		}
		events = append(events, e)
	}
	return events, scanner.Err()
}

func (j *NDJSON) Append(ctx context.Context, e event.Event) (event.Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if existing, ok := j.seen[e.EventID]; ok {
		return existing, ErrDuplicateEvent
	}

	if err := syscall.Flock(int(j.file.Fd()), syscall.LOCK_EX); err != nil {
		return event.Event{}, fmt.Errorf("flock journal: %w", err)
	}
	defer syscall.Flock(int(j.file.Fd()), syscall.LOCK_UN)

	e.PrevHash = j.lastHash
	e.Hash = event.ComputeHash(e)

	line, err := json.Marshal(e)
	if err != nil {
		return event.Event{}, fmt.Errorf("encode event: %w", err)
	}
	line = append(line, '\n')

	if _, err := j.file.Write(line); err != nil {
		return event.Event{}, fmt.Errorf("write event: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return event.Event{}, fmt.Errorf("fsync journal: %w", err)
	}

	j.lastHash = e.Hash
	j.seen[e.EventID] = e
	return e, nil
}

func (j *NDJSON) Scan(ctx context.Context, since string, limit int) ([]event.Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	all, err := j.readAll()
	if err != nil {
		return nil, err
	}

	start := 0
	if since != "" {
		for i, e := range all {
			if e.Hash == since {
				start = i + 1
				break
			}
		}
	}
	all = all[start:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (j *NDJSON) LastHash(ctx context.Context) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastHash, nil
}

func (j *NDJSON) Verify(ctx context.Context) (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	all, err := j.readAll()
	if err != nil {
		return false, err
	}
	return verifyChain(all)
}

func (j *NDJSON) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}

// Package audit keeps an append-only, hash-chained journal of runtime and
// session lifecycle events.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jvs-project/syncbridge/pkg/model"
)

// ErrChainBroken is returned by Verify when a record's prev_hash or
// record_hash does not match.
var ErrChainBroken = errors.New("audit chain broken")

// Journal records lifecycle events.
type Journal interface {
	Append(eventType model.AuditEventType, callID string, generation int64, details map[string]any) error
}

// Nop is a Journal that records nothing.
type Nop struct{}

func (Nop) Append(model.AuditEventType, string, int64, map[string]any) error { return nil }

// FileAppender appends audit records to a JSONL file with hash chain.
type FileAppender struct {
	path string
	mu   sync.Mutex
}

// NewFileAppender creates a new FileAppender.
func NewFileAppender(path string) *FileAppender {
	return &FileAppender{path: path}
}

// Path returns the journal file path.
func (a *FileAppender) Path() string {
	return a.path
}

// Append adds a new audit record to the log.
func (a *FileAppender) Append(eventType model.AuditEventType, callID string, generation int64, details map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(a.path), 0755); err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}

	file, err := os.OpenFile(a.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()

	// Other processes hosting the bridge may share the journal.
	if err := lockFile(file); err != nil {
		return fmt.Errorf("flock audit log: %w", err)
	}
	defer unlockFile(file)

	prevHash, err := lastRecordHash(file)
	if err != nil {
		return fmt.Errorf("get last record hash: %w", err)
	}

	record := &model.AuditRecord{
		Timestamp:  time.Now().UTC(),
		EventType:  eventType,
		CallID:     callID,
		Generation: generation,
		Details:    details,
		PrevHash:   prevHash,
	}
	record.RecordHash, err = computeRecordHash(record)
	if err != nil {
		return fmt.Errorf("compute record hash: %w", err)
	}

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek to end: %w", err)
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	return file.Sync()
}

func lastRecordHash(file *os.File) (model.HashValue, error) {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("seek to start: %w", err)
	}
	var last model.HashValue
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var record model.AuditRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue
		}
		last = record.RecordHash
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan audit log: %w", err)
	}
	return last, nil
}

// computeRecordHash hashes the record with RecordHash cleared. encoding/json
// writes struct fields in declaration order and map keys sorted, so the
// encoding is deterministic.
func computeRecordHash(record *model.AuditRecord) (model.HashValue, error) {
	c := *record
	c.RecordHash = ""
	data, err := json.Marshal(&c)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return model.HashValue(hex.EncodeToString(sum[:])), nil
}

// Summary is the result of walking a journal.
type Summary struct {
	Records int
	Counts  map[model.AuditEventType]int
}

// Balanced reports whether every runtime init has a matching release and
// every session open a matching close.
func (s Summary) Balanced() bool {
	return s.Counts[model.EventTypeRuntimeInit] == s.Counts[model.EventTypeRuntimeRelease] &&
		s.Counts[model.EventTypeSessionOpen] == s.Counts[model.EventTypeSessionClose]
}

// Verify walks the journal at path, checks the hash chain and counts events.
// A missing file is an empty, valid journal.
func Verify(path string) (Summary, error) {
	sum := Summary{Counts: make(map[model.AuditEventType]int)}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sum, nil
		}
		return sum, fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()

	var prev model.HashValue
	scanner := bufio.NewScanner(file)
	for line := 1; scanner.Scan(); line++ {
		var record model.AuditRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			return sum, fmt.Errorf("line %d: %w: %v", line, ErrChainBroken, err)
		}
		if record.PrevHash != prev {
			return sum, fmt.Errorf("line %d: %w: prev_hash mismatch", line, ErrChainBroken)
		}
		want, err := computeRecordHash(&record)
		if err != nil {
			return sum, fmt.Errorf("line %d: %w", line, err)
		}
		if want != record.RecordHash {
			return sum, fmt.Errorf("line %d: %w: record_hash mismatch", line, ErrChainBroken)
		}
		prev = record.RecordHash
		sum.Records++
		sum.Counts[record.EventType]++
	}
	if err := scanner.Err(); err != nil {
		return sum, fmt.Errorf("scan audit log: %w", err)
	}
	return sum, nil
}

package file

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/app"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/model/decision"
)

// AuditLog writes decision records as JSON lines to an append-only file.
// Entries are fsynced on append and never rewritten.
type AuditLog struct {
	mu   sync.Mutex
	path string
	log  app.Logger
}

// NewAuditLog creates an audit log at the given path
func NewAuditLog(path string, log app.Logger) *AuditLog {
	if log == nil {
		log = app.GetLogger()
	}
	return &AuditLog{path: path, log: log}
}

// Append writes one decision record at the end of the log
func (w *AuditLog) Append(rec decision.Record) error {
	if err := validateRecord(rec); err != nil {
		// Schema drift is worth a warning, not a lost record
		w.log.Warn("audit record validation: %v", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)

	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal decision record: %w", err)
	}
	if _, err = bw.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("write decision record: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush audit log: %w", err)
	}

	// Durability over speed: a decision that isn't on disk didn't happen
	if err := f.Sync(); err != nil {
		w.log.Warn("failed to fsync audit log: %v", err)
	}
	return nil
}

// Read returns all records in append order. Corrupt lines are skipped
// with a warning so one bad entry cannot hide the rest of the trail.
func (w *AuditLog) Read() ([]decision.Record, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.Open(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	var records []decision.Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		var rec decision.Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			w.log.Warn("audit log line %d unreadable: %v", line, err)
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return records, fmt.Errorf("scan audit log: %w", err)
	}
	return records, nil
}

func validateRecord(rec decision.Record) error {
	if rec.ID == "" {
		return errors.New("id is empty")
	}
	if rec.TS.IsZero() {
		return errors.New("ts is zero")
	}
	if rec.Reason == "" {
		return errors.New("reason is empty")
	}
	switch rec.Verdict {
	case decision.VerdictApproved, decision.VerdictRejected:
	default:
		return fmt.Errorf("invalid verdict %q", rec.Verdict)
	}
	if rec.Confidence < 0 || rec.Confidence > 1 {
		return fmt.Errorf("confidence %.3f out of range", rec.Confidence)
	}
	return nil
}

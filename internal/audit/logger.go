// Package audit implements the Audit Logger (spec §4.11): a bounded
// in-memory ring plus an append-only JSONL file, replayed on startup.
package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dangrewal8/patientqa/internal/logging"
	"github.com/dangrewal8/patientqa/internal/types"
)

// Logger is the Audit Logger. Safe for concurrent use.
type Logger struct {
	mu       sync.RWMutex
	entries  []types.AuditEntry
	capacity int

	file *os.File
	path string

	pending []types.AuditEntry

	logger *slog.Logger
}

// NewLogger opens (creating if absent) the append-only log file at path
// and replays up to capacity of its most recent entries into memory.
func NewLogger(path string, capacity int, logger *slog.Logger) (*Logger, error) {
	if capacity <= 0 {
		capacity = 10000
	}
	logger = logging.Component(logger, "audit")

	l := &Logger{capacity: capacity, path: path, logger: logger}

	if err := l.replay(); err != nil {
		return nil, fmt.Errorf("audit.NewLogger: replay %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit.NewLogger: open %s: %w", path, err)
	}
	l.file = f
	return l, nil
}

func (l *Logger) replay() error {
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	var replayed []types.AuditEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e types.AuditEntry
		if err := json.Unmarshal(line, &e); err != nil {
			l.logger.Warn("skipping unreadable audit log line", "error", err)
			continue
		}
		replayed = append(replayed, e)
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	if len(replayed) > l.capacity {
		replayed = replayed[len(replayed)-l.capacity:]
	}
	l.entries = replayed
	return nil
}

// LogQuery appends entry to the in-memory ring (evicting the oldest if
// full) and the append-only file. A file append failure never blocks or
// errors the request path: it is logged and entry is queued for retry
// on the next call.
func (l *Logger) LogQuery(_ context.Context, entry types.AuditEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, entry)
	if len(l.entries) > l.capacity {
		l.entries = l.entries[len(l.entries)-l.capacity:]
	}

	l.pending = append(l.pending, entry)
	l.flushPendingLocked()
}

// flushPendingLocked attempts to append every pending entry to the log
// file, in order, stopping at the first failure so append order is
// preserved across retries. Caller must hold l.mu.
func (l *Logger) flushPendingLocked() {
	i := 0
	for ; i < len(l.pending); i++ {
		b, err := json.Marshal(l.pending[i])
		if err != nil {
			l.logger.Error("audit entry is not serializable, dropping", "query_id", l.pending[i].QueryID, "error", err)
			continue
		}
		b = append(b, '\n')
		if _, err := l.file.Write(b); err != nil {
			l.logger.Error("audit log append failed, will retry", "query_id", l.pending[i].QueryID, "error", err)
			break
		}
	}
	l.pending = l.pending[i:]
}

// GetQueryHistory returns up to limit entries for patientID, newest
// first. limit<=0 means unbounded.
func (l *Logger) GetQueryHistory(patientID string, limit int) []types.AuditEntry {
	return l.SearchQueries(Filter{PatientID: patientID}, limit)
}

// Filter narrows SearchQueries/Export to a subset of entries.
type Filter struct {
	PatientID string
	Success   *bool
	From      *time.Time
	To        *time.Time
}

func (f Filter) matches(e types.AuditEntry) bool {
	if f.PatientID != "" && e.PatientID != f.PatientID {
		return false
	}
	if f.Success != nil && e.Success != *f.Success {
		return false
	}
	if f.From != nil && e.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && e.Timestamp.After(*f.To) {
		return false
	}
	return true
}

// SearchQueries returns entries matching filter, newest first, capped at
// limit (limit<=0 means unbounded).
func (l *Logger) SearchQueries(filter Filter, limit int) []types.AuditEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]types.AuditEntry, 0, len(l.entries))
	for i := len(l.entries) - 1; i >= 0; i-- {
		if filter.matches(l.entries[i]) {
			out = append(out, l.entries[i])
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out
}

// Statistics summarizes the current in-memory ring.
type Statistics struct {
	TotalQueries   int
	SuccessCount   int
	FailureCount   int
	AvgConfidence  float64
	AvgTotalTimeMs float64
}

// GetStatistics aggregates over every entry currently held in memory.
func (l *Logger) GetStatistics() Statistics {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var stats Statistics
	var confidenceSum float64
	var timeSum int64
	for _, e := range l.entries {
		stats.TotalQueries++
		if e.Success {
			stats.SuccessCount++
		} else {
			stats.FailureCount++
		}
		confidenceSum += e.ConfidenceScore
		timeSum += e.TotalTimeMs
	}
	if stats.TotalQueries > 0 {
		stats.AvgConfidence = confidenceSum / float64(stats.TotalQueries)
		stats.AvgTotalTimeMs = float64(timeSum) / float64(stats.TotalQueries)
	}
	return stats
}

// Close releases the underlying log file handle.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dangrewal8/patientqa/internal/types"
)

const redacted = "[redacted]"

// RetentionPolicy controls how old audit entries are aged out, per spec
// §4.11: entries older than RetentionDays are deleted outright; entries
// older than AnonymizeAfterDays (but within RetentionDays) have their
// identifiers hashed and free text redacted.
type RetentionPolicy struct {
	RetentionDays      int
	AnonymizeAfterDays int
}

// RunRetention applies policy to the in-memory ring as of now, returning
// how many entries were deleted and how many were anonymized. It does
// not touch the on-disk log file: replay always reflects full history,
// matching spec §5's "replay order on restart equals append order".
func (l *Logger) RunRetention(policy RetentionPolicy, now time.Time) (deleted int, anonymized int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	retentionCutoff := now.Add(-time.Duration(policy.RetentionDays) * 24 * time.Hour)
	anonymizeCutoff := now.Add(-time.Duration(policy.AnonymizeAfterDays) * 24 * time.Hour)

	kept := l.entries[:0:0]
	for _, e := range l.entries {
		if e.Timestamp.Before(retentionCutoff) {
			deleted++
			continue
		}
		if e.Timestamp.Before(anonymizeCutoff) {
			e = anonymize(e)
			anonymized++
		}
		kept = append(kept, e)
	}
	l.entries = kept
	return deleted, anonymized
}

func anonymize(e types.AuditEntry) types.AuditEntry {
	e.QueryID = hashID(e.QueryID)
	e.PatientID = hashID(e.PatientID)
	if e.UserID != nil {
		h := hashID(*e.UserID)
		e.UserID = &h
	}
	if e.SessionID != nil {
		h := hashID(*e.SessionID)
		e.SessionID = &h
	}
	e.QueryText = redacted
	e.ResponseSummary = redacted
	return e
}

func hashID(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])[:16]
}

// Scheduler runs a Logger's daily retention sweep on a cron schedule,
// matching the teacher pack's own cron.Cron wiring
// (cortex-gateway/internal/scheduler).
type Scheduler struct {
	cron   *cron.Cron
	logger *Logger
	policy RetentionPolicy
}

// NewScheduler builds a Scheduler for logger. spec is a 5-field cron
// expression (minute hour dom month dow); "0 3 * * *" runs daily at
// 03:00, matching spec §4.11's "daily background task".
func NewScheduler(logger *Logger, policy RetentionPolicy, spec string) (*Scheduler, error) {
	s := &Scheduler{cron: cron.New(), logger: logger, policy: policy}
	if _, err := s.cron.AddFunc(spec, s.runOnce); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) runOnce() {
	deleted, anonymized := s.logger.RunRetention(s.policy, time.Now())
	s.logger.logger.Info("audit retention sweep complete", "deleted", deleted, "anonymized", anonymized)
}

// Start begins the cron schedule.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the cron schedule and waits for any in-flight run to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

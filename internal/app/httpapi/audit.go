package httpapi

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/brandloom/storefront/internal/errors"
	"github.com/brandloom/storefront/internal/logging"
	"github.com/brandloom/storefront/internal/middleware"
	"github.com/brandloom/storefront/internal/rpc"
)

type auditEntry struct {
	Time      time.Time `json:"time"`
	Procedure string    `json:"procedure"`
	User      string    `json:"user"`
	Role      string    `json:"role,omitempty"`
	Brand     string    `json:"brand,omitempty"`
	Code      string    `json:"code"`
	TraceID   string    `json:"trace_id,omitempty"`
}

type auditLog struct {
	mu      sync.Mutex
	entries []auditEntry
	max     int
	sink    auditSink
	log     *logging.Logger
}

type auditSink interface {
	Write(entry auditEntry) error
}

func newAuditLog(max int, sink auditSink, log *logging.Logger) *auditLog {
	if max <= 0 {
		max = 500
	}
	return &auditLog{max: max, sink: sink, log: log}
}

func (l *auditLog) add(entry auditEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
	if l.sink != nil {
		if err := l.sink.Write(entry); err != nil {
			l.log.WithError(err).Warn("audit sink write failed")
		}
	}
}

// listLimit returns the newest entries first.
func (l *auditLog) listLimit(limit int) []auditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limit <= 0 || limit > len(l.entries) {
		limit = len(l.entries)
	}
	out := make([]auditEntry, 0, limit)
	for i := len(l.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, l.entries[i])
	}
	return out
}

// middleware records every mutation after access checks have passed, with
// the resulting error code.
func (l *auditLog) middleware(p rpc.Procedure, next rpc.Handler) rpc.Handler {
	if p.Kind != rpc.KindMutation {
		return next
	}
	return func(ctx context.Context, input json.RawMessage) (any, error) {
		out, err := next(ctx, input)
		entry := auditEntry{
			Time:      time.Now().UTC(),
			Procedure: p.Name,
			Code:      "OK",
			TraceID:   logging.GetTraceID(ctx),
		}
		if principal := middleware.PrincipalFrom(ctx); principal != nil {
			entry.User = principal.UserID
			entry.Role = string(principal.Role)
		}
		if access, ok := rpc.BrandAccessFrom(ctx); ok {
			entry.Brand = access.BrandID
		}
		if err != nil {
			entry.Code = string(errors.CodeInternal)
			if se := errors.GetServiceError(err); se != nil {
				entry.Code = string(se.Code)
			}
		}
		l.add(entry)
		return out, err
	}
}

// fileAuditSink appends audit entries as JSONL.
type fileAuditSink struct {
	mu   sync.Mutex
	file *os.File
}

func newFileAuditSink(path string) (*fileAuditSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, err
	}
	return &fileAuditSink{file: f}, nil
}

func (s *fileAuditSink) Write(entry auditEntry) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.file.Write(append(b, '\n'))
	return err
}

func (s *fileAuditSink) Close() error {
	return s.file.Close()
}

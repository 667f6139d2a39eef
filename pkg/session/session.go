package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/antibyte/catterm/pkg/catlang"
	"github.com/antibyte/catterm/pkg/logger"
	"github.com/antibyte/catterm/pkg/transcript"
)

// ErrLineTooLong rejects input longer than the configured maximum before it
// reaches the interpreter.
var ErrLineTooLong = errors.New("line exceeds maximum length")

// Recorder persists executed statements. *transcript.Store satisfies it.
type Recorder interface {
	RegisterSession(ctx context.Context, id, remoteAddr string) error
	Record(ctx context.Context, e transcript.Entry) (transcript.Entry, error)
	DeleteSession(ctx context.Context, id string) error
}

// Result is what a client sees after one line.
type Result struct {
	Seq       int
	Output    string
	HasOutput bool
	Err       error
	Base      catlang.Base
}

// Session owns one interpreter. Lines are evaluated one at a time.
type Session struct {
	ID         string
	RemoteAddr string
	CreatedAt  time.Time

	mu            sync.Mutex
	interp        *catlang.Interpreter
	lastActivity  time.Time
	seq           int
	failed        int
	maxLineLength int
	recorder      Recorder
}

func newSession(id, remoteAddr string, opts Options) *Session {
	now := time.Now()
	return &Session{
		ID:            id,
		RemoteAddr:    remoteAddr,
		CreatedAt:     now,
		interp:        catlang.NewWithBase(opts.DefaultBase),
		lastActivity:  now,
		maxLineLength: opts.MaxLineLength,
		recorder:      opts.Recorder,
	}
}

// Execute tokenises and evaluates one line. A failed statement leaves the
// variables and base untouched; the error is returned in Result.Err.
func (s *Session) Execute(ctx context.Context, line string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastActivity = time.Now()
	s.seq++
	res := Result{Seq: s.seq}

	if s.maxLineLength > 0 && len(line) > s.maxLineLength {
		res.Err = fmt.Errorf("%w (%d > %d)", ErrLineTooLong, len(line), s.maxLineLength)
		res.Base = s.interp.Base()
		s.failed++
		logger.SessionWarn("session %s: rejected %d byte line", s.ID, len(line))
		return res
	}

	out, err := s.interp.ExecuteLine(line)
	res.Base = s.interp.Base()
	if err != nil {
		res.Err = err
		s.failed++
		logger.SessionDebug("session %s: statement %d failed: %v", s.ID, s.seq, err)
	} else {
		res.Output = out.Output
		res.HasOutput = out.HasOutput
	}

	s.record(ctx, line, res)
	return res
}

func (s *Session) record(ctx context.Context, line string, res Result) {
	if s.recorder == nil {
		return
	}
	entry := transcript.Entry{
		SessionID: s.ID,
		Seq:       res.Seq,
		Line:      line,
		Output:    res.Output,
	}
	if res.Err != nil {
		entry.ErrorKind = catlang.KindOf(res.Err).String()
	}
	if _, err := s.recorder.Record(ctx, entry); err != nil {
		logger.DatabaseError("session %s: failed to record statement %d: %v", s.ID, res.Seq, err)
	}
}

// Variables returns a copy of the session's store.
func (s *Session) Variables() map[string]int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interp.Variables()
}

// Base returns the session's current output base.
func (s *Session) Base() catlang.Base {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interp.Base()
}

// LastActivity returns when the session last executed a line.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Stats returns executed and failed statement counts.
func (s *Session) Stats() (executed, failed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq, s.failed
}

// Touch marks the session as active without executing anything.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/antibyte/catterm/pkg/catlang"
	"github.com/antibyte/catterm/pkg/transcript"
)

type fakeRecorder struct {
	mu         sync.Mutex
	registered []string
	entries    []transcript.Entry
	deleted    []string
}

func (f *fakeRecorder) RegisterSession(_ context.Context, id, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = append(f.registered, id)
	return nil
}

func (f *fakeRecorder) Record(_ context.Context, e transcript.Entry) (transcript.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return e, nil
}

func (f *fakeRecorder) DeleteSession(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func TestSessionExecute(t *testing.T) {
	rec := &fakeRecorder{}
	m := NewManager(Options{Recorder: rec})
	ctx := context.Background()

	s, err := m.Create(ctx, "127.0.0.1:5000")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	steps := []struct {
		line      string
		output    string
		hasOutput bool
		errKind   catlang.ErrorKind
	}{
		{"x = 6 * 7", "", false, 0},
		{"print x", "42", true, 0},
		{"x = 1 / 0", "", false, catlang.KindDivisionByZero},
		{"config hex", "", false, 0},
		{"print x", "0x2a", true, 0},
	}
	for i, st := range steps {
		res := s.Execute(ctx, st.line)
		if res.Seq != i+1 {
			t.Errorf("%q: seq = %d, want %d", st.line, res.Seq, i+1)
		}
		if got := catlang.KindOf(res.Err); got != st.errKind {
			t.Errorf("%q: error kind = %v, want %v", st.line, got, st.errKind)
		}
		if res.Output != st.output || res.HasOutput != st.hasOutput {
			t.Errorf("%q: output = %q/%v", st.line, res.Output, res.HasOutput)
		}
	}

	if s.Base() != catlang.BaseHexadecimal {
		t.Errorf("base = %v", s.Base())
	}
	if v := s.Variables(); v["x"] != 42 || len(v) != 1 {
		t.Errorf("variables = %v", v)
	}
	if executed, failed := s.Stats(); executed != 5 || failed != 1 {
		t.Errorf("stats = %d/%d", executed, failed)
	}

	if len(rec.registered) != 1 || rec.registered[0] != s.ID {
		t.Errorf("registered = %v", rec.registered)
	}
	if len(rec.entries) != len(steps) {
		t.Fatalf("recorded %d entries, want %d", len(rec.entries), len(steps))
	}
	if rec.entries[2].ErrorKind != "DIVISION_BY_ZERO" || rec.entries[4].Output != "0x2a" {
		t.Errorf("unexpected entries %+v", rec.entries)
	}
}

func TestSessionRejectsLongLines(t *testing.T) {
	m := NewManager(Options{MaxLineLength: 10})
	s, _ := m.Create(context.Background(), "")

	res := s.Execute(context.Background(), "x = "+strings.Repeat("1", 20))
	if !errors.Is(res.Err, ErrLineTooLong) {
		t.Fatalf("err = %v, want ErrLineTooLong", res.Err)
	}
	if len(s.Variables()) != 0 {
		t.Error("rejected line changed the store")
	}
}

func TestSessionDefaultBase(t *testing.T) {
	m := NewManager(Options{DefaultBase: catlang.BaseBinary})
	s, _ := m.Create(context.Background(), "")
	res := s.Execute(context.Background(), "print 2")
	if res.Output != "00000000000000000000000000000010" {
		t.Errorf("output = %q", res.Output)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	m := NewManager(Options{})
	ctx := context.Background()
	a, _ := m.Create(ctx, "")
	b, _ := m.Create(ctx, "")

	a.Execute(ctx, "x = 1")
	if res := b.Execute(ctx, "print x"); !errors.Is(res.Err, catlang.ErrUndefinedVariable) {
		t.Errorf("session b sees session a's variable: %+v", res)
	}
}

func TestConcurrentExecuteIsSerialised(t *testing.T) {
	m := NewManager(Options{})
	ctx := context.Background()
	s, _ := m.Create(ctx, "")
	s.Execute(ctx, "n = 0")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Execute(ctx, "n = n + 1")
		}()
	}
	wg.Wait()

	if got := s.Variables()["n"]; got != 50 {
		t.Errorf("n = %d, want 50", got)
	}
}

func TestManagerLimitAndRemove(t *testing.T) {
	rec := &fakeRecorder{}
	m := NewManager(Options{MaxSessions: 2, Recorder: rec})
	ctx := context.Background()

	a, err := m.Create(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Create(ctx, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Create(ctx, ""); !errors.Is(err, ErrTooManySessions) {
		t.Fatalf("third Create error = %v", err)
	}

	if got, err := m.Get(a.ID); err != nil || got != a {
		t.Errorf("Get = %v, %v", got, err)
	}
	if !m.Remove(a.ID) {
		t.Error("Remove returned false")
	}
	if m.Remove(a.ID) {
		t.Error("second Remove returned true")
	}
	if _, err := m.Get(a.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get after Remove = %v", err)
	}
	if m.Count() != 1 {
		t.Errorf("Count = %d", m.Count())
	}

	c, err := m.Create(ctx, "")
	if err != nil {
		t.Fatalf("Create after Remove: %v", err)
	}
	if err := m.Forget(ctx, c.ID); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if len(rec.deleted) != 1 || rec.deleted[0] != c.ID {
		t.Errorf("deleted = %v", rec.deleted)
	}
}

func TestCleanupIdle(t *testing.T) {
	m := NewManager(Options{IdleTimeout: time.Minute})
	ctx := context.Background()
	old, _ := m.Create(ctx, "")
	fresh, _ := m.Create(ctx, "")

	old.mu.Lock()
	old.lastActivity = time.Now().Add(-2 * time.Minute)
	old.mu.Unlock()

	if n := m.CleanupIdle(time.Now()); n != 1 {
		t.Fatalf("CleanupIdle removed %d, want 1", n)
	}
	if _, err := m.Get(old.ID); err == nil {
		t.Error("idle session survived")
	}
	if _, err := m.Get(fresh.ID); err != nil {
		t.Error("active session removed")
	}
}

func TestOnRemoveNotifiesEveryPath(t *testing.T) {
	m := NewManager(Options{IdleTimeout: time.Minute})
	ctx := context.Background()

	var removed []string
	m.OnRemove(func(id string) { removed = append(removed, id) })

	a, _ := m.Create(ctx, "")
	b, _ := m.Create(ctx, "")
	c, _ := m.Create(ctx, "")

	m.Remove(a.ID)
	m.Remove(a.ID)
	if err := m.Forget(ctx, b.ID); err != nil {
		t.Fatal(err)
	}
	c.mu.Lock()
	c.lastActivity = time.Now().Add(-2 * time.Minute)
	c.mu.Unlock()
	m.CleanupIdle(time.Now())

	want := []string{a.ID, b.ID, c.ID}
	if fmt.Sprint(removed) != fmt.Sprint(want) {
		t.Errorf("removed = %v, want %v", removed, want)
	}
}

func TestJanitorStopsWithContext(t *testing.T) {
	m := NewManager(Options{IdleTimeout: time.Nanosecond, CleanupInterval: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, _ := m.Create(ctx, "")
	m.StartJanitor(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := m.Get(s.ID); err != nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("janitor never removed the idle session")
}

func TestTranscriptIntegration(t *testing.T) {
	store, err := transcript.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if err := store.CreateTables(); err != nil {
		t.Fatal(err)
	}

	m := NewManager(Options{Recorder: store})
	ctx := context.Background()
	s, _ := m.Create(ctx, "test")
	for i := 0; i < 3; i++ {
		s.Execute(ctx, fmt.Sprintf("v%d = %d", i, i))
	}
	s.Execute(ctx, "print v2")

	hist, err := store.History(ctx, s.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 4 || hist[3].Output != "2" {
		t.Errorf("history = %+v", hist)
	}
}

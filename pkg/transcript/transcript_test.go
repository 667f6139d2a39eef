package transcript

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.CreateTables(); err != nil {
		t.Fatalf("CreateTables: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.RegisterSession(ctx, "s1", "127.0.0.1"); err != nil {
		t.Fatalf("RegisterSession: %v", err)
	}
	// Registering twice is harmless.
	if err := s.RegisterSession(ctx, "s1", "127.0.0.1"); err != nil {
		t.Fatalf("second RegisterSession: %v", err)
	}

	lines := []Entry{
		{SessionID: "s1", Seq: 1, Line: "x = 5"},
		{SessionID: "s1", Seq: 2, Line: "print x", Output: "5"},
		{SessionID: "s1", Seq: 3, Line: "print y", ErrorKind: "UNDEFINED_VARIABLE"},
	}
	for _, e := range lines {
		stored, err := s.Record(ctx, e)
		if err != nil {
			t.Fatalf("Record(%q): %v", e.Line, err)
		}
		if stored.ID == "" || stored.CreatedAt.IsZero() {
			t.Errorf("Record did not fill ID/CreatedAt: %+v", stored)
		}
	}

	all, err := s.History(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("History returned %d entries, want 3", len(all))
	}
	for i, e := range all {
		if e.Seq != i+1 {
			t.Errorf("entry %d has seq %d; want oldest first", i, e.Seq)
		}
	}
	if all[1].Output != "5" || all[1].Failed() {
		t.Errorf("unexpected entry %+v", all[1])
	}
	if !all[2].Failed() || all[2].ErrorKind != "UNDEFINED_VARIABLE" {
		t.Errorf("unexpected entry %+v", all[2])
	}

	last, err := s.History(ctx, "s1", 2)
	if err != nil {
		t.Fatalf("History limit: %v", err)
	}
	if len(last) != 2 || last[0].Seq != 2 || last[1].Seq != 3 {
		t.Errorf("History(limit 2) = %+v", last)
	}
}

func TestRecordUnknownSession(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Record(context.Background(), Entry{SessionID: "ghost", Seq: 1, Line: "print 1"})
	if !errors.Is(err, ErrUnknownSession) {
		t.Errorf("Record for unknown session = %v, want ErrUnknownSession", err)
	}
}

func TestDeleteSession(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if err := s.RegisterSession(ctx, id, ""); err != nil {
			t.Fatal(err)
		}
		for i := 1; i <= 3; i++ {
			if _, err := s.Record(ctx, Entry{SessionID: id, Seq: i, Line: fmt.Sprintf("x = %d", i)}); err != nil {
				t.Fatal(err)
			}
		}
	}

	if err := s.DeleteSession(ctx, "a"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}

	if h, _ := s.History(ctx, "a", 0); len(h) != 0 {
		t.Errorf("history for deleted session has %d entries", len(h))
	}
	if h, _ := s.History(ctx, "b", 0); len(h) != 3 {
		t.Errorf("history for other session has %d entries, want 3", len(h))
	}
	if n, _ := s.SessionCount(ctx); n != 1 {
		t.Errorf("SessionCount = %d, want 1", n)
	}
}

func TestSessionsAndExport(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.RegisterSession(ctx, "first", "10.0.0.1")
	s.RegisterSession(ctx, "second", "")
	s.Record(ctx, Entry{SessionID: "first", Seq: 1, Line: "x = 3"})
	s.Record(ctx, Entry{SessionID: "first", Seq: 2, Line: "print x / 0", ErrorKind: "DIVISION_BY_ZERO"})

	infos, err := s.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	counts := map[string]int{}
	for _, info := range infos {
		counts[info.ID] = info.Statements
	}
	if len(infos) != 2 || counts["first"] != 2 || counts["second"] != 0 {
		t.Errorf("Sessions = %+v", infos)
	}

	var buf bytes.Buffer
	if err := s.Export(ctx, &buf, "first"); err != nil {
		t.Fatalf("Export: %v", err)
	}
	var doc exportDisk
	if err := yaml.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("export is not valid YAML: %v\n%s", err, buf.String())
	}
	if len(doc.Sessions) != 1 || doc.Sessions[0].ID != "first" || doc.Sessions[0].RemoteAddr != "10.0.0.1" {
		t.Fatalf("exported sessions = %+v", doc.Sessions)
	}
	stmts := doc.Sessions[0].Statements
	if len(stmts) != 2 || stmts[1].Error != "DIVISION_BY_ZERO" || stmts[0].Line != "x = 3" || stmts[0].Error != "" {
		t.Errorf("exported statements = %+v", stmts)
	}
	if doc.Sessions[0].Failed != 1 {
		t.Errorf("exported failed = %d, want 1", doc.Sessions[0].Failed)
	}

	buf.Reset()
	if err := s.Export(ctx, &buf); err != nil {
		t.Fatalf("Export all: %v", err)
	}
	doc = exportDisk{}
	yaml.Unmarshal(buf.Bytes(), &doc)
	if len(doc.Sessions) != 2 {
		t.Errorf("exported %d sessions, want 2", len(doc.Sessions))
	}

	if err := s.Export(ctx, &buf, "missing"); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("Export(missing) = %v, want ErrUnknownSession", err)
	}
}

func TestWriteSummary(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.RegisterSession(ctx, "first", "10.0.0.1")
	s.RegisterSession(ctx, "second", "")
	s.Record(ctx, Entry{SessionID: "first", Seq: 1, Line: "x = 3"})

	var buf bytes.Buffer
	if err := s.WriteSummary(ctx, &buf); err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 || lines[0] != "2 sessions" {
		t.Fatalf("summary = %q", buf.String())
	}
	if !strings.HasPrefix(lines[1], "first ") || !strings.Contains(lines[1], "10.0.0.1") || !strings.HasSuffix(lines[1], "1 statements") {
		t.Errorf("first line = %q", lines[1])
	}
	if !strings.Contains(lines[2], "  -  ") || !strings.HasSuffix(lines[2], "0 statements") {
		t.Errorf("second line = %q", lines[2])
	}
}

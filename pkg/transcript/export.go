package transcript

import (
	"context"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

type exportDisk struct {
	Generated string          `yaml:"generated"`
	Sessions  []exportSession `yaml:"sessions"`
}

type exportSession struct {
	ID         string        `yaml:"id"`
	RemoteAddr string        `yaml:"remote_addr,omitempty"`
	Created    string        `yaml:"created"`
	Failed     int           `yaml:"failed"`
	Statements []exportEntry `yaml:"statements"`
}

type exportEntry struct {
	Seq    int    `yaml:"seq"`
	Line   string `yaml:"line"`
	Output string `yaml:"output,omitempty"`
	Error  string `yaml:"error,omitempty"`
}

// Export writes the transcript of the given sessions as a YAML document. With
// no ids every registered session is exported.
func (s *Store) Export(ctx context.Context, w io.Writer, sessionIDs ...string) error {
	all, err := s.Sessions(ctx)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(all))
	for _, info := range all {
		known[info.ID] = true
	}
	wanted := make(map[string]bool, len(sessionIDs))
	for _, id := range sessionIDs {
		if !known[id] {
			return fmt.Errorf("%w: %s", ErrUnknownSession, id)
		}
		wanted[id] = true
	}

	doc := exportDisk{Generated: time.Now().UTC().Format(time.RFC3339)}
	for _, info := range all {
		if len(wanted) > 0 && !wanted[info.ID] {
			continue
		}

		entries, err := s.History(ctx, info.ID, 0)
		if err != nil {
			return err
		}
		es := exportSession{
			ID:         info.ID,
			RemoteAddr: info.RemoteAddr,
			Created:    info.CreatedAt.UTC().Format(time.RFC3339),
			Statements: make([]exportEntry, 0, len(entries)),
		}
		for _, e := range entries {
			ee := exportEntry{Seq: e.Seq, Line: e.Line, Output: e.Output}
			if e.Failed() {
				ee.Error = e.ErrorKind
				es.Failed++
			}
			es.Statements = append(es.Statements, ee)
		}
		doc.Sessions = append(doc.Sessions, es)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("transcript: marshal export: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("transcript: encoder close: %w", err)
	}
	return nil
}

// WriteSummary lists every registered session, one per line, after a count.
func (s *Store) WriteSummary(ctx context.Context, w io.Writer) error {
	n, err := s.SessionCount(ctx)
	if err != nil {
		return err
	}
	all, err := s.Sessions(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%d sessions\n", n)
	for _, info := range all {
		remote := info.RemoteAddr
		if remote == "" {
			remote = "-"
		}
		fmt.Fprintf(w, "%-36s  %-21s  %s  %d statements\n",
			info.ID, remote, info.CreatedAt.UTC().Format(time.RFC3339), info.Statements)
	}
	return nil
}

// Package memory is an in-process spreadsheet that records appended and
// exported rows for inspection.
package memory

import (
	"context"
	"fmt"
	"sync"

	"finsight/internal/core"
	ports "finsight/internal/sheets"
)

var (
	_ ports.TransactionAppender = (*Store)(nil)
	_ ports.TransactionExporter = (*Store)(nil)
)

type Store struct {
	mu      sync.Mutex
	mirror  [][]string
	index   map[string]int
	exports map[string][][]string
}

func New() *Store {
	return &Store{index: map[string]int{}, exports: map[string][][]string{}}
}

// Append stores the row once per transaction id and returns a synthetic
// row reference.
func (s *Store) Append(_ context.Context, owner string, tx core.Transaction) (string, error) {
	if err := tx.Amount.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := tx.ID.String()
	if i, ok := s.index[id]; ok {
		return fmt.Sprintf("mem:%d", i+1), nil
	}
	s.mirror = append(s.mirror, ports.Row(owner, tx))
	s.index[id] = len(s.mirror) - 1
	return fmt.Sprintf("mem:%d", len(s.mirror)), nil
}

func (s *Store) Export(_ context.Context, owner string, txs []core.Transaction) (string, error) {
	rows := make([][]string, 0, len(txs)+1)
	rows = append(rows, ports.Header)
	for _, tx := range txs {
		rows = append(rows, ports.Row(owner, tx))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exports[owner] = rows
	return fmt.Sprintf("mem:export:%s:%d", owner, len(rows)), nil
}

// Rows returns a copy of the mirrored rows.
func (s *Store) Rows() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]string(nil), s.mirror...)
}

// Exported returns the last export written for owner, header first.
func (s *Store) Exported(owner string) [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]string(nil), s.exports[owner]...)
}

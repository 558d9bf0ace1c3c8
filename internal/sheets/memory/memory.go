// Package memory is an in-process ledger, used when no spreadsheet is
// configured and in tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"rentbill/internal/core"
	"rentbill/internal/sheets"
)

var _ sheets.Ledger = (*Ledger)(nil)

type Ledger struct {
	mu   sync.Mutex
	rows []core.Bill
	seq  int
}

func New() *Ledger {
	return &Ledger{}
}

// AppendBill stores the bill and returns a synthetic row reference.
func (l *Ledger) AppendBill(_ context.Context, b core.Bill) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rows = append(l.rows, b)
	l.seq++
	return fmt.Sprintf("mem:%d", l.seq), nil
}

// DeleteBill removes the first row for b: by id, or by value tuple for bills
// without one.
func (l *Ledger) DeleteBill(_ context.Context, b core.Bill) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, r := range l.rows {
		if (b.ID != "" && r.ID == b.ID) || (b.ID == "" && r.ID == "" && r.Matches(b.Criteria())) {
			l.rows = append(l.rows[:i], l.rows[i+1:]...)
			return nil
		}
	}
	return nil
}

// Rows returns a copy of the ledger contents.
func (l *Ledger) Rows() []core.Bill {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]core.Bill(nil), l.rows...)
}

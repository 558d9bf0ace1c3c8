// Package sheets defines the ledger ports the worker mirrors bill events to.
package sheets

import (
	"context"

	"rentbill/internal/core"
)

// Ports for outbound adapters.
type (
	// LedgerWriter appends one row per saved bill.
	LedgerWriter interface {
		AppendBill(ctx context.Context, b core.Bill) (rowRef string, err error)
	}

	// LedgerDeleter removes the row of a deleted bill. Removing a bill that
	// has no row is not an error.
	LedgerDeleter interface {
		DeleteBill(ctx context.Context, b core.Bill) error
	}

	Ledger interface {
		LedgerWriter
		LedgerDeleter
	}
)

// Header is the ledger's first row.
var Header = []string{
	"ID", "Month", "Year", "Floor", "Bill date",
	"Rent", "Electricity", "Gas", "Water", "Garbage", "Service",
	"Total", "Saved at",
}

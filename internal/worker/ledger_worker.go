// Package worker mirrors bill events into the ledger.
package worker

import (
	"context"
	"fmt"

	"rentbill/internal/amqp"
	applog "rentbill/internal/log"
	"rentbill/internal/sheets"
)

// LedgerWorker applies bill.saved and bill.deleted events to a ledger.
type LedgerWorker struct {
	ledger sheets.Ledger
	logger *applog.Logger
}

func NewLedgerWorker(ledger sheets.Ledger, logger *applog.Logger) *LedgerWorker {
	if logger == nil {
		logger = applog.Default(applog.ComponentWorker)
	}
	return &LedgerWorker{
		ledger: ledger,
		logger: logger.WithComponent(applog.ComponentWorker),
	}
}

// HandleBillEvent processes one event. A returned error makes the consumer
// requeue the message.
func (w *LedgerWorker) HandleBillEvent(ctx context.Context, msg *amqp.BillEventMessage) error {
	b := msg.Bill
	fields := applog.NewFields().
		WithOperation(applog.OpSync).
		WithBill(b.ID, string(b.Floor), b.PeriodKey(), b.Total)

	switch msg.Type {
	case amqp.EventBillSaved:
		ref, err := w.ledger.AppendBill(ctx, b)
		if err != nil {
			return fmt.Errorf("append bill to ledger: %w", err)
		}
		w.logger.InfoContext(ctx, "Bill mirrored to ledger", append(fields.ToSlice(), "row_ref", ref)...)
	case amqp.EventBillDeleted:
		if err := w.ledger.DeleteBill(ctx, b); err != nil {
			return fmt.Errorf("delete bill from ledger: %w", err)
		}
		w.logger.InfoContext(ctx, "Bill removed from ledger", fields.ToSlice()...)
	default:
		// Unknown types are acknowledged and dropped; requeueing cannot help.
		w.logger.WarnContext(ctx, "Ignoring unknown bill event", "type", msg.Type)
	}
	return nil
}

package amqp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"rentbill/internal/core"
	applog "rentbill/internal/log"
)

func TestExponentialBackoff(t *testing.T) {
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, maxBackoff, maxBackoff}
	for attempt, d := range want {
		if got := exponentialBackoff(attempt); got != d {
			t.Errorf("exponentialBackoff(%d) = %v, want %v", attempt, got, d)
		}
	}
	if got := exponentialBackoff(40); got != maxBackoff {
		t.Errorf("exponentialBackoff(40) = %v, want %v", got, maxBackoff)
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{amqp091.ErrClosed, true},
		{fmt.Errorf("publish: %w", amqp091.ErrClosed), true},
		{errors.New("dial AMQP: dial tcp 127.0.0.1:5672: connect: connection refused"), true},
		{errors.New("unexpected EOF"), true},
		{errors.New("write: broken pipe"), true},
		{errors.New("declare queue: Exception (406) PRECONDITION_FAILED"), false},
		{errors.New("marshal message: json: unsupported value"), false},
	}
	for _, tt := range tests {
		if got := isConnectionError(tt.err); got != tt.want {
			t.Errorf("isConnectionError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

// unreachableClient points at a local port nothing listens on, with no open
// connection, so every publish goes through the reconnect path.
func unreachableClient(t *testing.T) (*Client, *atomic.Int32) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	retries := &atomic.Int32{}
	return &Client{
		url:          "amqp://guest:guest@" + addr + "/",
		exchangeName: "rentbill",
		queueName:    "bill-ledger",
		retryDelay: func(int) time.Duration {
			retries.Add(1)
			return 0
		},
		logger: applog.New(applog.Config{Handler: applog.NewHandler(&bytes.Buffer{}, applog.FormatText, 0)}),
	}, retries
}

func TestClient_PublishBillEvent_Reconnect(t *testing.T) {
	ctx := context.Background()
	client, retries := unreachableClient(t)
	bill := core.NewDraft()
	bill.ID = "b-1"

	for i := 1; i < maxFailures; i++ {
		err := client.PublishBillEvent(ctx, EventBillSaved, bill)
		if err == nil || errors.Is(err, ErrCircuitOpen) || !strings.Contains(err.Error(), "dial AMQP") {
			t.Fatalf("publish %d: expected dial failure, got %v", i, err)
		}
		if got := atomic.LoadInt64(&client.failureCount); got != int64(i) {
			t.Fatalf("publish %d: failureCount = %d", i, got)
		}
		if client.conn != nil || client.channel != nil {
			t.Fatalf("publish %d: failed reconnect left a connection behind", i)
		}
	}
	if got := retries.Load(); got != maxFailures-1 {
		t.Fatalf("connection errors should be retried once per publish, got %d retries", got)
	}

	// The last allowed failure opens the circuit; later publishes skip the dial.
	if err := client.PublishBillEvent(ctx, EventBillDeleted, bill); err == nil || errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected a dial failure, got %v", err)
	}
	if atomic.LoadInt32(&client.state) != StateOpen {
		t.Fatalf("circuit not open after %d failures", maxFailures)
	}
	before := retries.Load()
	if err := client.PublishBillEvent(ctx, EventBillSaved, bill); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if retries.Load() != before {
		t.Fatalf("open circuit still attempted a reconnect")
	}

	// After the open timeout one trial publish reconnects; its failure reopens.
	client.mu.Lock()
	client.lastFailure = time.Now().Add(-openTimeout - time.Second)
	client.mu.Unlock()
	if err := client.PublishBillEvent(ctx, EventBillSaved, bill); err == nil || errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("half-open publish should try the broker, got %v", err)
	}
	if atomic.LoadInt32(&client.state) != StateOpen || retries.Load() != before+1 {
		t.Fatalf("half-open failure: state=%d retries=%d", atomic.LoadInt32(&client.state), retries.Load())
	}

	client.recordSuccess()
	if client.isCircuitOpen() || atomic.LoadInt64(&client.failureCount) != 0 {
		t.Fatalf("success did not close the circuit")
	}
}

func TestClient_PublishBillEvent_Canceled(t *testing.T) {
	client, retries := unreachableClient(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.PublishBillEvent(ctx, EventBillSaved, core.NewDraft()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if retries.Load() != 0 || atomic.LoadInt64(&client.failureCount) != 0 {
		t.Fatalf("canceled publish touched the broker")
	}
}

func TestNewBillEventMessage(t *testing.T) {
	bill := core.NewDraft()
	bill.ID = "b-1"

	msg := NewBillEventMessage(EventBillSaved, bill)

	if msg.Type != EventBillSaved {
		t.Errorf("Type = %q, want %q", msg.Type, EventBillSaved)
	}
	if !msg.Bill.Equal(bill) {
		t.Errorf("Bill = %+v, want %+v", msg.Bill, bill)
	}
	if time.Since(msg.Timestamp) > time.Second {
		t.Error("Timestamp should be recent")
	}
}

func TestBillEventMessage_JSON(t *testing.T) {
	bill := core.NewDraft()
	bill.ID = "b-1"
	bill.Water = "8l7"
	bill.RecomputeTotal()
	msg := &BillEventMessage{
		Type:      EventBillDeleted,
		Bill:      bill,
		Timestamp: time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC),
	}

	data, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}

	parsed, err := BillEventMessageFromJSON(data)
	if err != nil {
		t.Fatalf("BillEventMessageFromJSON() error = %v", err)
	}
	if parsed.Type != msg.Type {
		t.Errorf("Type = %q, want %q", parsed.Type, msg.Type)
	}
	if !parsed.Bill.Equal(bill) {
		t.Errorf("Bill = %+v, want %+v", parsed.Bill, bill)
	}
	if !parsed.Timestamp.Equal(msg.Timestamp) {
		t.Errorf("Timestamp = %v, want %v", parsed.Timestamp, msg.Timestamp)
	}
}

func TestBillEventMessage_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{"type":`},
		{"unknown type", `{"type":"bill.updated","bill":{},"timestamp":"2025-08-01T00:00:00Z"}`},
		{"missing type", `{"bill":{}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := BillEventMessageFromJSON([]byte(tt.data)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

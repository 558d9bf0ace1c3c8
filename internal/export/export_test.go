package export

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"image/png"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"rentbill/internal/cache"
	"rentbill/internal/core"
	applog "rentbill/internal/log"
	"rentbill/internal/metrics"
)

var testLetterhead = Letterhead{
	LandlordName:    "A LANDLORD",
	LandlordAddress: "House 1, Road 1",
	PaymentNote:     "PLEASE PAY BY 5TH AND HANDOVER THE DEPOSIT SLIP TO LANDLORD.",
	CurrencyLabel:   "TK",
}

func quietLogger() *applog.Logger {
	return applog.New(applog.Config{Handler: applog.NewHandler(&bytes.Buffer{}, applog.FormatText, 0)})
}

func TestLayout(t *testing.T) {
	b := core.NewDraft()
	b.Water = "abc"
	b.RecomputeTotal()

	inv := Layout(b, testLetterhead)

	if !strings.Contains(inv.Period, "AUGUST 2025") {
		t.Errorf("period line = %q", inv.Period)
	}
	if len(inv.Rows) != 7 {
		t.Fatalf("expected 7 rows, got %d", len(inv.Rows))
	}
	tests := []struct {
		i      int
		label  string
		amount string
	}{
		{0, "1. HOUSE RENT FOR 6TH FLOOR", "50,000"},
		{3, "4. WATER BILL", "0"},
		{6, "7. TOTAL", "59,205"},
	}
	for _, tt := range tests {
		row := inv.Rows[tt.i]
		if row.Label != tt.label || row.Amount != tt.amount || row.Currency != "TK" {
			t.Errorf("row %d = %+v, want %q %q", tt.i, row, tt.label, tt.amount)
		}
	}
	if !inv.Rows[6].Total {
		t.Errorf("last row should be the total")
	}
	if inv.Date != "DATE: 2025-08-01" {
		t.Errorf("date = %q", inv.Date)
	}
}

func TestWrap(t *testing.T) {
	got := wrap("aa bb cc dd", 5)
	want := []string{"aa bb", "cc dd"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("wrap = %q, want %q", got, want)
	}
	if got := wrap("", 5); len(got) != 0 {
		t.Fatalf("wrap of empty = %q", got)
	}
	if got := wrap("abcdefgh x", 5); got[0] != "abcdefgh" || got[1] != "x" {
		t.Fatalf("long word handling = %q", got)
	}
}

func TestRender(t *testing.T) {
	small := NewRenderer(Options{Scale: 1, Letterhead: testLetterhead})
	big := NewRenderer(Options{Letterhead: testLetterhead})
	if big.Options().Scale != DefaultScale || big.Options().Background != color.White {
		t.Fatalf("defaults not applied: %+v", big.Options())
	}

	ctx := context.Background()
	b := core.NewDraft()

	data1, err := small.Render(ctx, b)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	data3, err := big.Render(ctx, b)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	img1, err := png.Decode(bytes.NewReader(data1))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	img3, err := png.Decode(bytes.NewReader(data3))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	b1, b3 := img1.Bounds(), img3.Bounds()
	if b3.Dx() != b1.Dx()*3 || b3.Dy() != b1.Dy()*3 {
		t.Fatalf("scale 3 size %v is not 3x %v", b3, b1)
	}

	r, g, bl, _ := img3.At(0, 0).RGBA()
	if r != 0xffff || g != 0xffff || bl != 0xffff {
		t.Fatalf("background corner is not white: %v", img3.At(0, 0))
	}
}

func TestRenderCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewRenderer(Options{}).Render(ctx, core.NewDraft()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type countingRenderer struct {
	calls atomic.Int32
	err   error
	block chan struct{}
}

func (c *countingRenderer) Render(ctx context.Context, b core.Bill) ([]byte, error) {
	c.calls.Add(1)
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.err != nil {
		return nil, c.err
	}
	return []byte("png:" + string(b.Rent)), nil
}

func TestExporterCachesBySnapshot(t *testing.T) {
	r := &countingRenderer{}
	e := NewExporter(r, cache.NewLRUCache[[]byte](8, time.Minute), metrics.New(prometheus.NewRegistry()), quietLogger())
	ctx := context.Background()

	b := core.NewDraft()
	res, err := e.Export(ctx, b)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if res.Filename != "bill-August-2025-6TH.png" || string(res.PNG) != "png:50000" || res.Cached {
		t.Fatalf("unexpected result: %+v", res)
	}

	res, _ = e.Export(ctx, b)
	if !res.Cached || r.calls.Load() != 1 {
		t.Fatalf("second export should hit the cache (calls=%d)", r.calls.Load())
	}

	b.Rent = "1"
	b.RecomputeTotal()
	res, _ = e.Export(ctx, b)
	if res.Cached || string(res.PNG) != "png:1" {
		t.Fatalf("changed bill must render again: %+v", res)
	}
}

func TestExportOverflowingCharge(t *testing.T) {
	b := core.NewDraft()
	if err := b.SetField(core.FieldRent, "1e10000000"); err != nil {
		t.Fatalf("set rent: %v", err)
	}

	inv := Layout(b, testLetterhead)
	if inv.Rows[0].Amount != "Infinity" || inv.Rows[6].Amount != "Infinity" {
		t.Fatalf("rows = %+v", inv.Rows)
	}

	r := NewRenderer(Options{Scale: 1, Letterhead: testLetterhead})
	e := NewExporter(r, cache.NewLRUCache[[]byte](8, time.Minute), nil, quietLogger())
	res, err := e.Export(context.Background(), b)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	normal, err := r.Render(context.Background(), core.NewDraft())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(res.PNG))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	ref, err := png.Decode(bytes.NewReader(normal))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() > 2*ref.Bounds().Dx() || img.Bounds().Dy() != ref.Bounds().Dy() {
		t.Fatalf("overflowing bill sized %v, normal bill %v", img.Bounds(), ref.Bounds())
	}
}

func TestExporterFailure(t *testing.T) {
	r := &countingRenderer{err: errors.New("out of memory")}
	e := NewExporter(r, nil, nil, quietLogger())

	if _, err := e.Export(context.Background(), core.NewDraft()); err == nil || !strings.Contains(err.Error(), "out of memory") {
		t.Fatalf("expected render failure to surface, got %v", err)
	}
}

func TestJobWaitCanceled(t *testing.T) {
	r := &countingRenderer{block: make(chan struct{})}
	e := NewExporter(r, nil, nil, quietLogger())

	job := e.Start(context.Background(), core.NewDraft())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := job.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	// The abandoned job observes cancellation and finishes.
	select {
	case <-job.done:
	case <-time.After(time.Second):
		t.Fatalf("job did not stop after cancellation")
	}
	if !errors.Is(job.err, context.Canceled) {
		t.Fatalf("job error = %v, want context.Canceled", job.err)
	}
}

func TestJobBoundToSnapshot(t *testing.T) {
	r := &countingRenderer{block: make(chan struct{})}
	e := NewExporter(r, nil, nil, quietLogger())

	b := core.NewDraft()
	job := e.Start(context.Background(), b)
	b.Rent = "999" // edits after start do not reach the job
	close(r.block)

	res, err := job.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if string(res.PNG) != "png:50000" {
		t.Fatalf("job rendered a later edit: %q", res.PNG)
	}
}

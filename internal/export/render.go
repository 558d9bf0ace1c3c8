package export

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"rentbill/internal/core"
)

const (
	DefaultScale = 3

	margin    = 16
	colGap    = 14
	lineGap   = 6
	noteWidth = 64 // characters per wrapped note line
)

// Options controls rasterization.
type Options struct {
	// Scale multiplies the rendered size; values below 1 mean DefaultScale.
	Scale int
	// Background fills the canvas; nil means white.
	Background color.Color
	Letterhead Letterhead
}

// Renderer draws an invoice with a fixed bitmap font and encodes it as PNG.
type Renderer struct {
	opts Options
	face font.Face
}

func NewRenderer(opts Options) *Renderer {
	if opts.Scale < 1 {
		opts.Scale = DefaultScale
	}
	if opts.Background == nil {
		opts.Background = color.White
	}
	return &Renderer{opts: opts, face: basicfont.Face7x13}
}

// Options returns the effective options after defaults were applied.
func (r *Renderer) Options() Options {
	return r.opts
}

func (r *Renderer) measure(s string) int {
	return font.MeasureString(r.face, s).Ceil()
}

// Render rasterizes the bill's invoice.
func (r *Renderer) Render(ctx context.Context, b core.Bill) ([]byte, error) {
	inv := Layout(b, r.opts.Letterhead)
	note := wrap(inv.Note, noteWidth)

	labelW, curW, amountW := 0, 0, 0
	for _, row := range inv.Rows {
		labelW = max(labelW, r.measure(row.Label))
		curW = max(curW, r.measure(row.Currency))
		amountW = max(amountW, r.measure(row.Amount))
	}
	tableW := labelW + colGap + curW + colGap + amountW

	landlordW := max(r.measure(inv.LandlordName), r.measure(inv.LandlordAddress))
	footerW := r.measure(inv.Date) + colGap*2 + landlordW

	contentW := max(r.measure(inv.Heading), r.measure(inv.Period), tableW, footerW)
	for _, l := range note {
		contentW = max(contentW, r.measure(l))
	}

	metrics := r.face.Metrics()
	lineH := metrics.Height.Ceil() + lineGap
	ascent := metrics.Ascent.Ceil()

	// heading, period, blank, rows, blank, note, blank, date/landlord (2 lines)
	lines := 3 + len(inv.Rows) + 1 + len(note) + 1 + 2
	width := contentW + margin*2
	height := lines*lineH + margin*2

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(r.opts.Background), image.Point{}, draw.Src)

	d := &font.Drawer{Dst: canvas, Src: image.NewUniform(color.Black), Face: r.face}
	text := func(x, line int, s string) {
		d.Dot = fixed.P(x, margin+line*lineH+ascent)
		d.DrawString(s)
	}
	center := func(line int, s string) {
		text(margin+(contentW-r.measure(s))/2, line, s)
	}

	line := 0
	center(line, inv.Heading)
	line++
	center(line, inv.Period)
	line += 2

	tableX := margin + (contentW-tableW)/2
	for _, row := range inv.Rows {
		if row.Total {
			y := margin + line*lineH
			hline(canvas, tableX, tableX+tableW, y-lineGap/2, color.Black)
		}
		text(tableX, line, row.Label)
		text(tableX+labelW+colGap, line, row.Currency)
		text(tableX+tableW-r.measure(row.Amount), line, row.Amount)
		line++
	}
	line++

	for _, l := range note {
		text(margin, line, l)
		line++
	}
	line++

	text(margin, line, inv.Date)
	landlordX := margin + contentW - landlordW
	text(landlordX, line, inv.LandlordName)
	text(landlordX, line+1, inv.LandlordAddress)

	border(canvas, color.Black)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := image.Image(canvas)
	if s := r.opts.Scale; s > 1 {
		scaled := image.NewRGBA(image.Rect(0, 0, width*s, height*s))
		draw.NearestNeighbor.Scale(scaled, scaled.Bounds(), canvas, canvas.Bounds(), draw.Src, nil)
		out = scaled
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func hline(img *image.RGBA, x0, x1, y int, c color.Color) {
	for x := x0; x < x1; x++ {
		img.Set(x, y, c)
	}
}

func border(img *image.RGBA, c color.Color) {
	b := img.Bounds()
	inset := margin / 2
	hline(img, b.Min.X+inset, b.Max.X-inset, b.Min.Y+inset, c)
	hline(img, b.Min.X+inset, b.Max.X-inset, b.Max.Y-inset-1, c)
	for y := b.Min.Y + inset; y < b.Max.Y-inset; y++ {
		img.Set(b.Min.X+inset, y, c)
		img.Set(b.Max.X-inset-1, y, c)
	}
}

package http

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"rentbill/internal/core"
	"rentbill/internal/export"
	applog "rentbill/internal/log"
	"rentbill/internal/middleware/security"
	"rentbill/internal/middleware/trace"
	"rentbill/internal/view"
	appweb "rentbill/web"
)

// Deps are the collaborators a Server dispatches to.
type Deps struct {
	Controller *view.Controller
	Exporter   *export.Exporter
	Letterhead export.Letterhead
	// Ready reports whether storage is reachable; nil means always ready.
	Ready func(ctx context.Context) error
	// Metrics is mounted on /metrics when set.
	Metrics http.Handler
	Logger  *applog.Logger
}

type Server struct {
	http.Server
	templates  *template.Template
	controller *view.Controller
	exporter   *export.Exporter
	letterhead export.Letterhead
	ready      func(ctx context.Context) error
	logger     *applog.Logger
	structured *applog.StructuredLogger
	started    time.Time
}

func NewServer(addr string, deps Deps) (*Server, error) {
	logger := deps.Logger
	if logger == nil {
		logger = applog.Default(applog.ComponentHTTP)
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	s := &Server{
		controller: deps.Controller,
		exporter:   deps.Exporter,
		letterhead: deps.Letterhead,
		ready:      deps.Ready,
		logger:     logger,
		structured: applog.NewStructuredLogger(logger),
		started:    time.Now(),
	}

	t, err := template.New("").Funcs(s.templateFuncs()).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	s.templates = t

	mux := http.NewServeMux()

	sub, err := fs.Sub(appweb.StaticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("mount static assets: %w", err)
	}
	static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
	mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics)
	}

	mux.HandleFunc("POST /bills/new", s.handleCreateNew)
	mux.HandleFunc("POST /bills/list", s.handleViewSaved)
	mux.HandleFunc("POST /menu", s.handleBackToMenu)
	mux.HandleFunc("POST /draft/field", s.handleDraftField)
	mux.HandleFunc("POST /draft/save", s.handleSave)
	mux.HandleFunc("POST /bills/select", s.handleSelect)
	mux.HandleFunc("POST /bills/delete", s.handleDelete)
	mux.HandleFunc("GET /export", s.handleExport)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	tracer := trace.NewMiddleware(logger)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           tracer.Middleware(headers.Middleware(mux)),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

// pageData is what the templates render.
type pageData struct {
	Screen view.Screen
	State  string
	// Preview is the invoice for the draft or the selected bill.
	Preview *export.Invoice
	Floors  []core.Floor
	Months  []string
	Charges []chargeInput
}

type chargeInput struct {
	Name  string
	Label string
	Value string
}

var chargeLabels = map[string]string{
	core.FieldRent:        "Rent",
	core.FieldElectricity: "Electricity",
	core.FieldGas:         "Gas",
	core.FieldWater:       "Water",
	core.FieldGarbage:     "Garbage",
	core.FieldService:     "Service charge",
}

func (s *Server) page(sc view.Screen) pageData {
	d := pageData{
		Screen: sc,
		State:  sc.State.String(),
		Floors: core.Floors,
		Months: core.Months,
	}
	switch {
	case sc.State == view.Creating:
		inv := export.Layout(sc.Draft, s.letterhead)
		d.Preview = &inv
		for _, name := range core.ChargeFields {
			d.Charges = append(d.Charges, chargeInput{Name: name, Label: chargeLabels[name], Value: sc.Draft.Field(name)})
		}
	case sc.State == view.Listing && sc.Selected != nil:
		inv := export.Layout(*sc.Selected, s.letterhead)
		d.Preview = &inv
	}
	return d
}

func (s *Server) templateFuncs() template.FuncMap {
	return template.FuncMap{
		"amount": core.FormatAmount,
		"field": func(b core.Bill, name string) string {
			return b.Field(name)
		},
	}
}

func (s *Server) render(name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("render %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

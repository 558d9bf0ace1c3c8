package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"rentbill/internal/core"
	applog "rentbill/internal/log"
	"rentbill/internal/view"
)

const (
	readyTimeout  = 5 * time.Second
	exportTimeout = 30 * time.Second
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).String(),
	})
}

// handleReady checks templates and storage.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := map[string]string{"templates": "ok", "storage": "ok"}

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	}
	if s.ready != nil {
		if err := s.ready(ctx); err != nil {
			checks["storage"] = fmt.Sprintf("failed: %v", err)
			status, httpStatus = "not_ready", http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	body, err := s.render("index", s.page(s.controller.Screen()))
	if err != nil {
		s.fail(w, r, err, applog.OpRender, "Could not render the page")
		return
	}
	NewHTMXResponse().BodyHTML(body).Write(w)
}

func (s *Server) handleCreateNew(w http.ResponseWriter, r *http.Request) {
	sc, err := s.controller.CreateNew()
	if err != nil {
		s.fail(w, r, err, applog.OpCreate, "Could not start a new bill")
		return
	}
	s.respondScreen(w, r, sc, NewHTMXResponse())
}

func (s *Server) handleViewSaved(w http.ResponseWriter, r *http.Request) {
	sc, err := s.controller.ViewSaved(r.Context())
	if err != nil {
		s.fail(w, r, err, applog.OpList, "Could not load saved bills")
		return
	}
	s.respondScreen(w, r, sc, NewHTMXResponse())
}

func (s *Server) handleBackToMenu(w http.ResponseWriter, r *http.Request) {
	sc, err := s.controller.BackToMenu()
	if err != nil {
		s.fail(w, r, err, applog.OpRead, "Could not go back")
		return
	}
	s.respondScreen(w, r, sc, NewHTMXResponse())
}

// handleDraftField applies one field edit. The form posts the field name in
// "field" and its value under the field's own name.
func (s *Server) handleDraftField(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		ErrorResponse(http.StatusBadRequest, "invalid request").Write(w)
		return
	}
	field := sanitizeInput(r.PostForm.Get("field"))
	if field == "" {
		ErrorResponse(http.StatusBadRequest, "missing field name").Write(w)
		return
	}

	sc, err := s.controller.UpdateField(field, r.PostForm.Get(field))
	if err != nil {
		s.fail(w, r, err, applog.OpUpdate, "Could not update the bill")
		return
	}

	applog.FromContext(r.Context()).DebugContext(r.Context(), "Draft field updated",
		applog.FieldField, field,
		applog.FieldTotal, sc.Draft.Total)

	if !isHTMX(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	body, err := s.render("draft-update", s.page(sc))
	if err != nil {
		s.fail(w, r, err, applog.OpRender, "Could not render the preview")
		return
	}
	NewHTMXResponse().BodyHTML(body).Write(w)
}

// handleSave applies the draft fields posted with the form, all or none,
// then saves.
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		ErrorResponse(http.StatusBadRequest, "invalid request").Write(w)
		return
	}
	var fields []core.FieldValue
	for _, name := range core.FormFields {
		if _, ok := r.PostForm[name]; ok {
			fields = append(fields, core.FieldValue{Name: name, Value: r.PostForm.Get(name)})
		}
	}
	if len(fields) > 0 {
		if _, err := s.controller.UpdateFields(fields...); err != nil {
			s.fail(w, r, err, applog.OpSave, "Could not save the bill")
			return
		}
	}

	bill, err := s.controller.Save(r.Context())
	if err != nil {
		s.fail(w, r, err, applog.OpSave, "Could not save the bill")
		return
	}
	s.structured.LogBillSaved(r.Context(), bill.ID, string(bill.Floor), bill.PeriodKey(), bill.Total)

	s.respondScreen(w, r, s.controller.Screen(), NewHTMXResponse().
		TriggerBillSaved(bill.ID, bill.PeriodKey()).
		TriggerSuccessNotification(fmt.Sprintf("Bill for %s floor, %s saved", bill.Floor, bill.PeriodKey())))
}

// handleSelect selects a listed bill by id, or by list position for bills
// saved without one.
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		ErrorResponse(http.StatusBadRequest, "invalid request").Write(w)
		return
	}

	var (
		sc  view.Screen
		err error
	)
	if id := sanitizeInput(r.PostForm.Get("id")); id != "" {
		sc, err = s.controller.Select(id)
	} else {
		sc, err = s.controller.SelectIndex(parseIndex(r.PostForm.Get("index")))
	}
	if err != nil {
		s.fail(w, r, err, applog.OpSelect, "Could not select the bill")
		return
	}
	s.respondScreen(w, r, sc, NewHTMXResponse())
}

// handleDelete removes the selected bill. The client confirms through
// hx-confirm and sends confirm=yes; anything else is refused.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		ErrorResponse(http.StatusBadRequest, "invalid request").Write(w)
		return
	}
	confirmed := r.PostForm.Get("confirm") == "yes"

	sc, removed, err := s.controller.Delete(r.Context(), confirmed)
	if err != nil {
		s.fail(w, r, err, applog.OpDelete, "Could not delete the bill")
		return
	}

	applog.FromContext(r.Context()).InfoContext(r.Context(), "Bill deleted",
		applog.FieldOperation, applog.OpDelete,
		applog.FieldCount, removed)

	msg := "Bill deleted"
	if removed == 0 {
		msg = "Bill was already gone"
	}
	s.respondScreen(w, r, sc, NewHTMXResponse().
		TriggerBillDeleted(removed).
		TriggerSuccessNotification(msg))
}

// handleExport renders the bill snapshot taken now and sends it as a PNG
// download. Edits made while it renders do not affect the image.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	if source == "" {
		source = view.SourceDraft
		if s.controller.Screen().State == view.Listing {
			source = view.SourceSelected
		}
	}

	bill, err := s.controller.ExportSnapshot(source)
	if err != nil {
		s.fail(w, r, err, applog.OpExport, "Export failed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), exportTimeout)
	defer cancel()

	res, err := s.exporter.Export(ctx, bill)
	if err != nil {
		if r.Context().Err() != nil {
			applog.FromContext(r.Context()).InfoContext(r.Context(), "Export abandoned by client",
				applog.FieldFilename, bill.ExportFilename())
			return
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("export timed out after %s: %w", exportTimeout, err)
		}
		s.structured.LogError(r.Context(), "Export request failed", err, applog.ComponentExport, applog.OpExport,
			applog.NewFields().WithBill(bill.ID, string(bill.Floor), bill.PeriodKey(), bill.Total))
		ErrorResponse(http.StatusInternalServerError, "Export failed, please try again").Write(w)
		return
	}

	NewHTMXResponse().
		Header("Content-Type", "image/png").
		Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.Filename)).
		Header("Cache-Control", "no-store").
		Body(res.PNG).
		Write(w)
}

// respondScreen sends the current screen partial to htmx, or redirects a
// plain form post back to the page.
func (s *Server) respondScreen(w http.ResponseWriter, r *http.Request, sc view.Screen, b *HTMXResponseBuilder) {
	if !isHTMX(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	body, err := s.render("screen", s.page(sc))
	if err != nil {
		s.fail(w, r, err, applog.OpRender, "Could not render the page")
		return
	}
	b.TriggerScreenChanged(sc.State.String()).BodyHTML(body).Write(w)
}

// fail logs err and answers with its status. Server errors are logged at
// ERROR and shown with the fallback message.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, op, fallback string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.structured.LogError(r.Context(), "Request failed", err, applog.ComponentHTTP, op, nil)
	} else {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Request rejected",
			applog.FieldOperation, op,
			applog.FieldStatusCode, status,
			applog.FieldError, err)
	}
	if fallback == "" {
		fallback = http.StatusText(status)
	}
	msg := userMessage(err, fallback)

	if isHTMX(r) {
		ErrorResponse(status, msg).Write(w)
		return
	}
	http.Error(w, msg, status)
}

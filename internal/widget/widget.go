// Package widget serves the booking widget shell: the HTML page a calendar
// link opens and the script that drives the /api/session wizard.
package widget

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/zyta-booking-widget/internal/preferences"
	"github.com/wolfman30/zyta-booking-widget/internal/schedule"
	"github.com/wolfman30/zyta-booking-widget/internal/tenancy"
	"github.com/wolfman30/zyta-booking-widget/internal/zyta"
	"github.com/wolfman30/zyta-booking-widget/pkg/logging"
)

//go:embed assets/widget.html assets/widget.js
var assets embed.FS

var page = template.Must(template.ParseFS(assets, "assets/widget.html"))

// ScheduleLoader produces the schedule view for a slug.
type ScheduleLoader interface {
	Load(ctx context.Context, slug string) schedule.View
}

// PreferencesReader supplies the visitor's display choices.
type PreferencesReader interface {
	Get(ctx context.Context, visitor string) (preferences.Preferences, error)
}

// Handler renders the widget shell.
type Handler struct {
	schedules ScheduleLoader
	prefs     PreferencesReader
	fallback  string
	loginURL  string
	logger    *logging.Logger
	script    []byte
}

func NewHandler(schedules ScheduleLoader, prefs PreferencesReader, fallbackSlug, loginURL string, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	script, err := assets.ReadFile("assets/widget.js")
	if err != nil {
		panic(err)
	}
	return &Handler{
		schedules: schedules,
		prefs:     prefs,
		fallback:  fallbackSlug,
		loginURL:  loginURL,
		logger:    logger,
		script:    script,
	}
}

type pageData struct {
	Slug         string
	Title        string
	Error        string
	Theme        string
	Typography   string
	Evaluation   bool
	HasSchedule  bool
	LoginURL     string
	ScriptSource string
}

// HandlePage serves GET /{slug}. A calendar the backend does not know, or
// a missing slug, renders the error state instead of the wizard.
func (h *Handler) HandlePage(w http.ResponseWriter, r *http.Request) {
	slug, err := schedule.ResolveSlug(chi.URLParam(r, "slug"), r.URL.Query().Get("calendar"), h.fallback)
	data := pageData{
		Slug:         slug,
		Title:        "Reservar turno",
		ScriptSource: "/widget.js",
		LoginURL:     h.loginURL,
	}
	prefs := preferences.Default()
	if visitor, ok := tenancy.VisitorIDFromContext(r.Context()); ok && h.prefs != nil {
		if p, perr := h.prefs.Get(r.Context(), visitor); perr == nil {
			prefs = p
		} else {
			h.logger.Warn("preferences unavailable", "error", perr)
		}
	}
	data.Theme, data.Typography = prefs.Theme, prefs.Typography

	status := http.StatusOK
	if err != nil {
		data.Error = schedule.Message(err)
		status = schedule.StatusFor(err)
	} else {
		view := h.schedules.Load(r.Context(), slug)
		switch {
		case view.Err != nil && errors.Is(view.Err, zyta.ErrUnauthorized) && h.loginURL != "":
			http.Redirect(w, r, h.loginURL, http.StatusFound)
			return
		case view.Err != nil:
			data.Error = view.Error
			status = schedule.StatusFor(view.Err)
		default:
			data.HasSchedule = true
			data.Evaluation = view.Schedule.RequiresEvaluation
			if view.Schedule.Name != "" {
				data.Title = view.Schedule.Name
			}
		}
	}

	var buf bytes.Buffer
	if err := page.Execute(&buf, data); err != nil {
		h.logger.Error("widget page render failed", "slug", slug, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// HandleScript serves the widget script.
func (h *Handler) HandleScript(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(h.script)
}

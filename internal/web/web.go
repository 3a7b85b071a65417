package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"time"

	"tutorcal/internal/config"
	appLog "tutorcal/internal/log"
	"tutorcal/internal/model"
	"tutorcal/internal/schedule"
	"tutorcal/internal/timeline"
)

const (
	laneHeight = 22
	laneGap    = 4
	maxBody    = 1 << 20
)

//go:embed templates/day.html
var templateFS embed.FS

var dayTemplate = template.Must(template.New("day.html").Funcs(template.FuncMap{
	"pct": func(v float64) template.CSS { return template.CSS(fmt.Sprintf("%.4f%%", v)) },
	"top": func(lane int) int { return lane * (laneHeight + laneGap) },
}).ParseFS(templateFS, "templates/day.html"))

// Server exposes day layouts over HTTP.
type Server struct {
	cfg         *config.Config
	svc         *schedule.Service
	previewPath string
	mux         *http.ServeMux
}

// NewServer constructs a new Server. previewPath is the PNG served at
// /preview.png.
func NewServer(cfg *config.Config, svc *schedule.Service, previewPath string) *Server {
	s := &Server{
		cfg:         cfg,
		svc:         svc,
		previewPath: previewPath,
		mux:         http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials disable auth rather than lock everyone out.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="tutorcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/day", s.handleDay)
	s.mux.HandleFunc("GET /api/week", s.handleWeek)
	s.mux.HandleFunc("GET /api/period", s.handlePeriod)
	s.mux.HandleFunc("POST /api/pack", s.handlePack)
	s.mux.HandleFunc("POST /api/lessons/check", s.handleLessonCheck)
	s.mux.HandleFunc("GET /day", s.handleDayPage)
	s.mux.HandleFunc("GET /preview.png", s.handlePreview)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleDay returns the packed view of one day.
//
// GET /api/day?date=2025-03-04 (default: today in the configured timezone)
func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	day, ok := s.dateParam(w, r, "date")
	if !ok {
		return
	}
	view, err := s.svc.Day(r.Context(), day)
	if err != nil {
		s.writeServiceError(w, "day", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleWeek returns seven day views.
//
// GET /api/week?start=2025-03-03 (default: today)
func (s *Server) handleWeek(w http.ResponseWriter, r *http.Request) {
	start, ok := s.dateParam(w, r, "start")
	if !ok {
		return
	}
	views, err := s.svc.Week(r.Context(), start)
	if err != nil {
		s.writeServiceError(w, "week", err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// handlePeriod returns per-professor lessons and payments for a range.
//
// GET /api/period?from=2025-03-03&to=2025-03-09
// GET /api/period?month=2025-03 (default: current month)
func (s *Server) handlePeriod(w http.ResponseWriter, r *http.Request) {
	from, to, ok := s.periodParams(w, r)
	if !ok {
		return
	}
	report, err := s.svc.Period(r.Context(), from, to)
	if err != nil {
		s.writeServiceError(w, "period", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) periodParams(w http.ResponseWriter, r *http.Request) (from, to time.Time, ok bool) {
	q := r.URL.Query()
	if q.Get("from") != "" || q.Get("to") != "" {
		if q.Get("from") == "" || q.Get("to") == "" {
			writeError(w, http.StatusBadRequest, "from and to must be given together")
			return time.Time{}, time.Time{}, false
		}
		if from, ok = s.dateParam(w, r, "from"); !ok {
			return time.Time{}, time.Time{}, false
		}
		if to, ok = s.dateParam(w, r, "to"); !ok {
			return time.Time{}, time.Time{}, false
		}
		if to.Before(from) {
			writeError(w, http.StatusBadRequest, "to is before from")
			return time.Time{}, time.Time{}, false
		}
		return from, to, true
	}

	month := s.svc.Today()
	if v := q.Get("month"); v != "" {
		m, err := time.ParseInLocation("2006-01", v, s.svc.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid month %q, expected YYYY-MM", v))
			return time.Time{}, time.Time{}, false
		}
		month = m
	}
	from = time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, s.svc.Location())
	return from, from.AddDate(0, 1, -1), true
}

// packRequest is the body of POST /api/pack. Window bounds are minutes
// since 00:00; when both are zero the configured window is used.
type packRequest struct {
	WindowStart int              `json:"window_start"`
	WindowEnd   int              `json:"window_end"`
	Events      []timeline.Event `json:"events"`
}

type packResponse struct {
	timeline.Layout
	Lanes [][]string `json:"lanes"`
}

// handlePack runs the packer on caller-supplied events.
func (s *Server) handlePack(w http.ResponseWriter, r *http.Request) {
	var req packRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	if req.WindowStart == 0 && req.WindowEnd == 0 {
		ws, we, err := s.cfg.WindowMinutes()
		if err != nil {
			appLog.Error("pack: configured window invalid", err)
			writeError(w, http.StatusInternalServerError, "configured window is invalid")
			return
		}
		req.WindowStart, req.WindowEnd = ws, we
	}

	layout, err := timeline.Pack(req.Events, req.WindowStart, req.WindowEnd)
	if err != nil {
		writePackError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, packResponse{Layout: layout, Lanes: layout.Lanes()})
}

// handleLessonCheck reports overlaps and package overflow for a lesson
// about to be created or edited. The body is a lesson in API shape.
func (s *Server) handleLessonCheck(w http.ResponseWriter, r *http.Request) {
	var candidate model.Lesson
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&candidate); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	check, err := s.svc.CheckLesson(r.Context(), candidate)
	if err != nil {
		var ie *timeline.InvalidEventError
		if errors.As(err, &ie) {
			writePackError(w, err)
			return
		}
		s.writeServiceError(w, "lesson check", err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

// handleDayPage renders the day as HTML. The root element carries
// data-ready="true" so headless captures know rendering is done.
func (s *Server) handleDayPage(w http.ResponseWriter, r *http.Request) {
	day, ok := s.dateParam(w, r, "date")
	if !ok {
		return
	}
	view, err := s.svc.Day(r.Context(), day)
	if err != nil {
		s.writeServiceError(w, "day page", err)
		return
	}

	data := struct {
		View       schedule.DayView
		Height     int
		LaneHeight int
	}{
		View:       view,
		Height:     max(1, view.LaneCount)*(laneHeight+laneGap) + laneGap,
		LaneHeight: laneHeight,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dayTemplate.Execute(w, data); err != nil {
		appLog.Error("day page render failed", err, "date", view.Date)
	}
}

// handlePreview serves the last captured PNG from disk.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if s.previewPath == "" {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, s.previewPath)
}

// dateParam parses a YYYY-MM-DD query parameter in the service timezone,
// defaulting to today. It writes a 400 and returns false on bad input.
func (s *Server) dateParam(w http.ResponseWriter, r *http.Request, name string) (time.Time, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return s.svc.Today(), true
	}
	t, err := time.ParseInLocation(model.DateLayout, v, s.svc.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s %q, expected YYYY-MM-DD", name, v))
		return time.Time{}, false
	}
	return t, true
}

func (s *Server) writeServiceError(w http.ResponseWriter, what string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	appLog.Error("api "+what+" failed", err)
	writeError(w, http.StatusBadGateway, "failed to build "+what)
}

type packErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	ID    string `json:"id,omitempty"`
}

// writePackError maps packer errors to 422 responses.
func writePackError(w http.ResponseWriter, err error) {
	var (
		ie *timeline.InvalidEventError
		we *timeline.InvalidWindowError
		de *timeline.DuplicateEventIDError
	)
	resp := packErrorResponse{Error: err.Error()}
	switch {
	case errors.As(err, &ie):
		resp.Kind, resp.ID = "invalid_event", ie.ID
	case errors.As(err, &we):
		resp.Kind = "invalid_window"
	case errors.As(err, &de):
		resp.Kind, resp.ID = "duplicate_event_id", de.ID
	default:
		appLog.Error("pack failed", err)
		writeError(w, http.StatusInternalServerError, "pack failed")
		return
	}
	writeJSON(w, http.StatusUnprocessableEntity, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"airquality-service/aqi"
	"airquality-service/dashboard"
	"airquality-service/datasource"
	"airquality-service/models"
)

// RankingRefresher rebuilds the ranking on demand
type RankingRefresher interface {
	RefreshNow(ctx context.Context) (models.RankingResult, error)
	Trigger()
}

// ReportBuilder produces the dashboard for one location
type ReportBuilder interface {
	Report(ctx context.Context, q dashboard.Query) (models.LocationReport, error)
}

// Deps are the collaborators the API serves from. Nil optional parts disable
// their endpoints.
type Deps struct {
	Store     *RankingStore
	Refresher RankingRefresher
	Reports   ReportBuilder
	Stations  datasource.StationMap
	Hub       *Hub
	Metrics   http.Handler
	Logger    *slog.Logger
}

// Server represents the API server
type Server struct {
	deps   Deps
	logger *slog.Logger
	server *http.Server
	router chi.Router
}

// NewServer creates a new API server listening on addr
func NewServer(deps Deps, addr string) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{deps: deps, logger: logger.With("component", "api")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/api/health", s.handleHealthCheck)
	r.Get("/api/aqi/category", s.handleCategory)
	r.Get("/api/aqi/bands", s.handleBands)

	r.Route("/api/ranking", func(r chi.Router) {
		r.Get("/", s.handleGetRanking)
		r.Post("/refresh", s.handleRefreshRanking)
		r.Get("/{id}", s.handleGetRankingByID)
	})

	if deps.Reports != nil {
		r.Get("/api/dashboard", s.handleDashboard)
	}
	if deps.Stations != nil {
		r.Get("/api/stations/map", s.handleStationMap)
	}
	if deps.Hub != nil {
		r.Get("/ws", deps.Hub.ServeWS)
	}
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	s.router = r
	s.server = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins the API server. It returns http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	s.logger.Info("http listening", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests and waits for active ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"elapsed", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleHealthCheck provides a simple health check endpoint
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	pending := true
	if s.deps.Store != nil {
		_, ok := s.deps.Store.Latest()
		pending = !ok
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"rankingPending": pending,
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}

// handleCategory classifies ?value= on the US AQI scale or ?index= on the OWM scale
func (s *Server) handleCategory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var raw string
	var reading models.AirQualityReading
	switch {
	case q.Has("value"):
		raw = q.Get("value")
		reading = aqi.Classify(models.SourceIQAir, "", raw)
	case q.Has("index"):
		raw = q.Get("index")
		reading = aqi.ClassifyOWM("", raw)
	default:
		writeError(w, http.StatusBadRequest, "one of 'value' or 'index' is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scale":          reading.Scale,
		"input":          raw,
		"value":          reading.RawValue,
		"category":       reading.CategoryLabel,
		"color":          reading.CategoryColor,
		"textColor":      aqi.TextColor(reading.CategoryLabel),
		"recommendation": reading.HealthNote,
	})
}

// handleBands returns the US AQI legend
func (s *Server) handleBands(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, aqi.Bands())
}

type rankingResponse struct {
	Pending     bool                `json:"pending"`
	Ranking     *models.RankingView `json:"ranking,omitempty"`
	Failure     string              `json:"failure,omitempty"`
	FailureTime *time.Time          `json:"failureTime,omitempty"`
}

// handleGetRanking returns the latest ranking, worst first
func (s *Server) handleGetRanking(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "ranking is not configured")
		return
	}
	top, err := parseTop(r.URL.Query().Get("top"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := rankingResponse{}
	if failure, at := s.deps.Store.LastFailure(); failure != "" {
		resp.Failure = failure
		resp.FailureTime = &at
	}
	result, ok := s.deps.Store.Latest()
	if !ok {
		resp.Pending = true
		writeJSON(w, http.StatusOK, resp)
		return
	}
	view := result.View(top)
	resp.Ranking = &view
	writeJSON(w, http.StatusOK, resp)
}

// handleGetRankingByID returns a stored ranking from history
func (s *Server) handleGetRankingByID(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "ranking is not configured")
		return
	}
	id := chi.URLParam(r, "id")
	result, ok := s.deps.Store.GetRanking(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("No ranking found with id: %s", id))
		return
	}
	writeJSON(w, http.StatusOK, result.View(0))
}

// handleRefreshRanking rebuilds the ranking now, or schedules it with ?async=true
func (s *Server) handleRefreshRanking(w http.ResponseWriter, r *http.Request) {
	if s.deps.Refresher == nil {
		writeError(w, http.StatusServiceUnavailable, "ranking is not configured")
		return
	}
	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		s.deps.Refresher.Trigger()
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh scheduled"})
		return
	}
	result, err := s.deps.Refresher.RefreshNow(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, datasource.ErrMissingAPIKey) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result.View(0))
}

// handleDashboard builds the full report for one location
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	report, err := s.deps.Reports.Report(r.Context(), dashboard.Query{
		City:    q.Get("city"),
		State:   q.Get("state"),
		Country: q.Get("country"),
	})
	if err != nil {
		if errors.Is(err, dashboard.ErrInvalidQuery) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleStationMap lists classified stations inside the requested box, the
// whole world by default
func (s *Server) handleStationMap(w http.ResponseWriter, r *http.Request) {
	b, err := parseBounds(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	stations, err := s.deps.Stations.MapStations(r.Context(), b)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	readings := make([]models.AirQualityReading, 0, len(stations))
	for _, st := range stations {
		readings = append(readings, aqi.ClassifyObservation(st))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"bounds":   b.Clamp().String(),
		"stations": readings,
		"count":    len(readings),
	})
}

func parseTop(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid 'top' %q (must be a non-negative integer)", raw)
	}
	return n, nil
}

func parseBounds(r *http.Request) (datasource.Bounds, error) {
	b := datasource.World
	fields := []struct {
		name string
		dst  *float64
	}{
		{"lat1", &b.Lat1}, {"lon1", &b.Lon1}, {"lat2", &b.Lat2}, {"lon2", &b.Lon2},
	}
	for _, f := range fields {
		raw := strings.TrimSpace(r.URL.Query().Get(f.name))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return datasource.Bounds{}, fmt.Errorf("invalid %q: %q", f.name, raw)
		}
		*f.dst = v
	}
	if b.Lat1 > b.Lat2 || b.Lon1 > b.Lon2 {
		return datasource.Bounds{}, errors.New("bounds must satisfy lat1 <= lat2 and lon1 <= lon2")
	}
	return b, nil
}

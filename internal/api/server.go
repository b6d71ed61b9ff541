// Package api exposes the telemetry pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"siramify-telemetry/internal/dashboard"
	"siramify-telemetry/internal/db"
	"siramify-telemetry/internal/export"
	"siramify-telemetry/internal/models"
	"siramify-telemetry/internal/normalize"
	"siramify-telemetry/internal/predict"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

const defaultPageSize = 10

// Predictor is the prediction-gateway surface the server depends on.
type Predictor interface {
	Predict(ctx context.Context, temperature, humidity float64, hour int) (*models.Prediction, error)
}

// Server represents the API server.
type Server struct {
	db        *db.Database
	predictor Predictor
	guard     predict.InFlightGuard
	dashOpts  dashboard.Options
	router    *mux.Router
}

// NewServer creates a new API server.
func NewServer(database *db.Database, predictor Predictor, dashOpts dashboard.Options) *Server {
	s := &Server{
		db:        database,
		predictor: predictor,
		dashOpts:  dashOpts,
		router:    mux.NewRouter(),
	}
	if !database.OwnerScoped() {
		// Open question with product: the observed system serves every row
		// to any authenticated farmer.
		log.Println("warning: telemetry reads are not scoped by owner; every caller sees every record")
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	s.router.HandleFunc("/api/v1/telemetry", s.handleListTelemetry).Methods("GET")
	s.router.HandleFunc("/api/v1/telemetry", s.handleCreateTelemetry).Methods("POST")
	s.router.HandleFunc("/api/v1/telemetry/batch", s.handleBatchTelemetry).Methods("POST")
	s.router.HandleFunc("/api/v1/telemetry/export", s.handleExportTelemetry).Methods("GET")
	s.router.HandleFunc("/api/v1/telemetry/latest", s.handleLatestTelemetry).Methods("GET")
	s.router.HandleFunc("/api/v1/telemetry/{id}", s.handleDeleteTelemetry).Methods("DELETE")

	s.router.HandleFunc("/api/v1/dashboard", s.handleDashboard).Methods("GET")

	s.router.Use(loggingMiddleware)
}

// Router returns the configured router.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Handler wraps the router with CORS for the browser dashboard.
func (s *Server) Handler(origin string) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{origin},
		AllowedMethods:   []string{"GET", "POST", "DELETE"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// Response helpers
type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Meta    *meta       `json:"meta,omitempty"`
}

type meta struct {
	Total int `json:"total"`
	Page  int `json:"page,omitempty"`
	Pages int `json:"pages,omitempty"`
	Limit int `json:"limit,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiResponse{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiResponse{Success: false, Error: message})
}

func respondWithMeta(w http.ResponseWriter, data interface{}, m *meta) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(apiResponse{Success: true, Data: data, Meta: m})
}

// normalizeRows converts stored rows into canonical records. The storage id
// is authoritative so delete requests can address what the list shows; base
// offsets the positional index used for synthetic display values.
func normalizeRows(rows []db.StoredRow, base int) []models.TelemetryRecord {
	records := make([]models.TelemetryRecord, 0, len(rows))
	for i, row := range rows {
		rec := normalize.Normalize(row.Raw, base+i)
		rec.ID = strconv.FormatInt(row.ID, 10)
		records = append(records, rec)
	}
	return records
}

// Handlers
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleListTelemetry(w http.ResponseWriter, r *http.Request) {
	page := 1
	pageSize := defaultPageSize

	if v := r.URL.Query().Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "page must be an integer")
			return
		}
		page = n
	}
	if v := r.URL.Query().Get("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "page_size must be a positive integer")
			return
		}
		pageSize = n
	}

	rows, total, err := s.db.ListPage(r.Context(), page, pageSize)
	if err != nil {
		var pageErr *models.InvalidPageError
		if errors.As(err, &pageErr) {
			respondError(w, http.StatusBadRequest, pageErr.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	pages := (total + pageSize - 1) / pageSize
	if pages < 1 {
		pages = 1
	}
	records := normalizeRows(rows, (page-1)*pageSize)
	respondWithMeta(w, records, &meta{Total: total, Page: page, Pages: pages, Limit: pageSize})
}

func (s *Server) handleCreateTelemetry(w http.ResponseWriter, r *http.Request) {
	var raw models.RawRow
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	id, err := s.db.Insert(r.Context(), raw)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) handleBatchTelemetry(w http.ResponseWriter, r *http.Request) {
	var rows []models.RawRow
	if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON array")
		return
	}
	if len(rows) == 0 {
		respondError(w, http.StatusBadRequest, "empty array")
		return
	}

	count, err := s.db.InsertBatch(r.Context(), rows)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, map[string]int64{"inserted": count})
}

func (s *Server) handleDeleteTelemetry(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "id must be an integer")
		return
	}

	if err := s.db.Delete(r.Context(), id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			respondError(w, http.StatusNotFound, "record not found")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"deleted": id})
}

type latestResponse struct {
	Record                models.TelemetryRecord `json:"record"`
	Prediction            *models.Prediction     `json:"prediction,omitempty"`
	PredictionUnavailable bool                   `json:"prediction_unavailable,omitempty"`
}

func (s *Server) handleLatestTelemetry(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.RecentRows(r.Context(), 1)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(rows) == 0 {
		respondError(w, http.StatusNotFound, "no telemetry recorded")
		return
	}

	records := normalizeRows(rows, 0)
	resp := latestResponse{Record: records[0]}
	resp.Prediction, resp.PredictionUnavailable = s.predictFor(r.Context(), &resp.Record)
	respondJSON(w, http.StatusOK, resp)
}

// predictFor asks the model for a status override. Placeholder readings and
// re-entrant calls skip the model entirely; a failing model marks the result
// unavailable and leaves the rule-based status in place.
func (s *Server) predictFor(ctx context.Context, rec *models.TelemetryRecord) (*models.Prediction, bool) {
	// The gateway trusts this guard: never send placeholder readings.
	if rec.Temperature <= 0 || rec.Humidity <= 0 {
		return nil, false
	}
	if !s.guard.Begin() {
		return nil, false
	}
	defer s.guard.Done()

	hour := normalize.HourOfDay(rec.Time, nil)
	pred, err := s.predictor.Predict(ctx, rec.Temperature, rec.Humidity, hour)
	if err != nil {
		log.Printf("prediction unavailable: %v", err)
		return nil, true
	}

	rec.Status = pred.Status
	rec.StatusSource = models.StatusSourceModel
	return pred, false
}

type dashboardResponse struct {
	Stats                 models.DashboardStats   `json:"stats"`
	Latest                *models.TelemetryRecord `json:"latest,omitempty"`
	Prediction            *models.Prediction      `json:"prediction,omitempty"`
	PredictionUnavailable bool                    `json:"prediction_unavailable,omitempty"`
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	limit := s.dashOpts.WeekWindow
	if limit <= 0 {
		limit = 7
	}

	rows, err := s.db.RecentRows(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	records := normalizeRows(rows, 0)

	// The model call and the rollup computation are independent; overlap
	// them. The goroutine gets its own copy of the latest record since a
	// model override rewrites its status.
	var (
		wg          sync.WaitGroup
		latest      *models.TelemetryRecord
		pred        *models.Prediction
		unavailable bool
	)
	if len(records) > 0 {
		rec := records[0]
		latest = &rec
		wg.Add(1)
		go func() {
			defer wg.Done()
			pred, unavailable = s.predictFor(r.Context(), latest)
		}()
	}
	stats := dashboard.Aggregate(records, s.dashOpts)
	wg.Wait()

	respondJSON(w, http.StatusOK, dashboardResponse{
		Stats:                 stats,
		Latest:                latest,
		Prediction:            pred,
		PredictionUnavailable: unavailable,
	})
}

func (s *Server) handleExportTelemetry(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.ExportAll(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, fmt.Sprintf("%v: %v", models.ErrExportFailed, err))
		return
	}

	// Zero rows is a valid export: header-only CSV.
	data, err := export.CSV(normalizeRows(rows, 0))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename="+export.Filename(time.Now()))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

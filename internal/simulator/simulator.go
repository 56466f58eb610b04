package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OldStager01/alarm-evaluator/internal/logger"
)

const maxPeriodsPerQuery = 1000

type Config struct {
	Port            int
	DefaultBase     float64
	DefaultVariance float64
}

// Simulator serves generated meter statistics in the shape the evaluator's HTTP fetcher expects.
type Simulator struct {
	config     Config
	meters     map[string]*MeterSim
	mu         sync.RWMutex
	outage     atomic.Bool
	httpServer *http.Server
}

func New(cfg Config) *Simulator {
	if cfg.Port == 0 {
		cfg.Port = 8777
	}
	if cfg.DefaultBase == 0 {
		cfg.DefaultBase = 50.0
	}

	return &Simulator{
		config: cfg,
		meters: make(map[string]*MeterSim),
	}
}

func cors(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func (s *Simulator) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", cors(s.healthHandler))
	mux.HandleFunc("GET /v2/meters/{meter}/statistics", cors(s.statisticsHandler))
	mux.HandleFunc("GET /meters", cors(s.listMetersHandler))
	mux.HandleFunc("POST /pattern", cors(s.patternHandler))
	mux.HandleFunc("POST /spike", cors(s.spikeHandler))
	mux.HandleFunc("/outage", cors(s.outageHandler))

	return mux
}

func (s *Simulator) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	logger.Infof("Statistics simulator listening on %s", addr)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("Simulator server error: %v", err)
		}
	}()

	return nil
}

func (s *Simulator) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Simulator) GetOrCreateMeter(name string) *MeterSim {
	s.mu.Lock()
	defer s.mu.Unlock()

	if meter, exists := s.meters[name]; exists {
		return meter
	}

	meter := NewMeterSim(name, MeterConfig{
		Base:     s.config.DefaultBase,
		Variance: s.config.DefaultVariance,
	})
	s.meters[name] = meter

	logger.Infof("Created simulated meter: %s", name)
	return meter
}

// SetOutage makes every statistics request fail with 503 until cleared.
func (s *Simulator) SetOutage(enabled bool) {
	s.outage.Store(enabled)
}

func (s *Simulator) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "statistics-simulator",
		"outage":  s.outage.Load(),
	})
}

func (s *Simulator) statisticsHandler(w http.ResponseWriter, r *http.Request) {
	if s.outage.Load() {
		http.Error(w, "statistics backend unavailable", http.StatusServiceUnavailable)
		return
	}

	q := r.URL.Query()

	period := 60 * time.Second
	if raw := q.Get("period"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			http.Error(w, "invalid period", http.StatusBadRequest)
			return
		}
		period = time.Duration(seconds) * time.Second
	}

	end := time.Now().UTC()
	start := end.Add(-period)

	fields, ops, values := q["q.field"], q["q.op"], q["q.value"]
	if len(fields) != len(ops) || len(fields) != len(values) {
		http.Error(w, "q.field, q.op and q.value must be given together", http.StatusBadRequest)
		return
	}
	for i, field := range fields {
		if field != "timestamp" {
			// Resource filters select among identical series here.
			continue
		}
		t, err := time.Parse(time.RFC3339, values[i])
		if err != nil {
			http.Error(w, "invalid timestamp filter", http.StatusBadRequest)
			return
		}
		switch ops[i] {
		case "ge", "gt":
			start = t
		case "le", "lt":
			end = t
		default:
			http.Error(w, "unsupported timestamp operator", http.StatusBadRequest)
			return
		}
	}

	if end.Sub(start)/period > maxPeriodsPerQuery {
		http.Error(w, "query spans too many periods", http.StatusBadRequest)
		return
	}

	meter := s.GetOrCreateMeter(r.PathValue("meter"))
	writeJSON(w, http.StatusOK, meter.Statistics(start, end, period))
}

func (s *Simulator) listMetersHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	meters := make([]map[string]interface{}, 0, len(s.meters))
	for _, meter := range s.meters {
		meters = append(meters, meter.Status())
	}
	s.mu.RUnlock()

	sort.Slice(meters, func(i, j int) bool {
		return meters[i]["meter"].(string) < meters[j]["meter"].(string)
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"meters": meters,
		"count":  len(meters),
	})
}

type PatternRequest struct {
	Meter    string   `json:"meter"`
	Pattern  string   `json:"pattern"` // steady, daily, weekly, random, gradual_rise, sine_wave
	Base     *float64 `json:"base"`
	Variance *float64 `json:"variance"`
}

func (s *Simulator) patternHandler(w http.ResponseWriter, r *http.Request) {
	var req PatternRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Meter == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	meter := s.GetOrCreateMeter(req.Meter)
	if req.Pattern != "" {
		meter.SetPattern(ParsePattern(req.Pattern))
	}
	if req.Base != nil {
		meter.SetBase(*req.Base)
	}
	if req.Variance != nil && *req.Variance >= 0 {
		meter.SetVariance(*req.Variance)
	}

	logger.WithField("meter", req.Meter).Infof("Set pattern %s", req.Pattern)
	writeJSON(w, http.StatusOK, meter.Status())
}

type SpikeRequest struct {
	Meter    string  `json:"meter"`
	Target   float64 `json:"target"`
	Duration string  `json:"duration"`
	RampUp   string  `json:"ramp_up"`
}

func (s *Simulator) spikeHandler(w http.ResponseWriter, r *http.Request) {
	var req SpikeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Meter == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	duration, err := time.ParseDuration(req.Duration)
	if err != nil {
		duration = 5 * time.Minute
	}
	rampUp, err := time.ParseDuration(req.RampUp)
	if err != nil {
		rampUp = 30 * time.Second
	}

	meter := s.GetOrCreateMeter(req.Meter)
	meter.InjectSpike(req.Target, duration, rampUp)

	logger.WithField("meter", req.Meter).Infof("Injected spike: target=%.1f, duration=%s", req.Target, duration)
	writeJSON(w, http.StatusOK, meter.Status())
}

type OutageRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Simulator) outageHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		var req OutageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		s.SetOutage(req.Enabled)
		logger.Warnf("Simulated statistics outage set to %t", req.Enabled)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"outage": s.outage.Load()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("Failed to encode response: %v", err)
	}
}

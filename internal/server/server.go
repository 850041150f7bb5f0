package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var logger = log.WithField("component", "http")

type GaugeClient interface {
	StateOfCharge() (uint16, error)
	CellVoltage() (float32, error)
	SignedChargeRate() (float32, error)
	Version() (uint16, error)
	DefaultTemperatureCompensation() error
	TemperatureCompensation(tempC float32) error
	ClampedTemperatureCompensation(tempC float32) error
}

type BatteryResponse struct {
	Level      int     `json:"sensor.battery_level"`
	Voltage    float64 `json:"sensor.battery_voltage"`
	State      string  `json:"sensor.battery_state"`
	IsCharging bool    `json:"sensor.is_charging"`
	ChargeRate float64 `json:"sensor.charge_rate"`
}

type VersionResponse struct {
	Version uint16 `json:"version"`
}

type CompensationRequest struct {
	Temperature *float32 `json:"temperature"`
	Clamp       bool     `json:"clamp"`
}

type Server struct {
	// The gauge driver is single-owner; handlers run concurrently.
	mu    sync.Mutex
	gauge GaugeClient
}

func New(gauge GaugeClient) *Server {
	return &Server{gauge: gauge}
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", s.rootHandler).Methods(http.MethodGet)
	r.HandleFunc("/version", s.versionHandler).Methods(http.MethodGet)
	r.HandleFunc("/compensation", s.compensationHandler).Methods(http.MethodPost)
	return r
}

// Run serves on port until ctx is done.
func Run(ctx context.Context, port int, gauge GaugeClient) error {
	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      New(gauge).Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Infof("Listening on %s", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return errors.Wrap(err, "listen")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	return nil
}

func (s *Server) rootHandler(w http.ResponseWriter, r *http.Request) {
	// Defaults
	resp := BatteryResponse{
		State: "Discharging", // Default assumption if we can't read anything
	}

	s.mu.Lock()
	soc, socErr := s.gauge.StateOfCharge()
	vcell, vErr := s.gauge.CellVoltage()
	rate, rateErr := s.gauge.SignedChargeRate()
	s.mu.Unlock()

	if socErr != nil {
		logger.Errorf("Error reading state of charge: %v", socErr)
	} else {
		resp.Level = int(soc)
	}
	if vErr != nil {
		logger.Errorf("Error reading cell voltage: %v", vErr)
	} else {
		resp.Voltage = float64(vcell)
	}
	if rateErr != nil {
		logger.Errorf("Error reading charge rate: %v", rateErr)
	} else {
		resp.ChargeRate = float64(rate)
		resp.State = batteryState(resp.Level, rate)
	}

	resp.IsCharging = (resp.State == "Charging")

	writeJSON(w, http.StatusOK, resp)
}

func batteryState(level int, rate float32) string {
	switch {
	case level >= 100 && rate >= 0:
		return "Full"
	case rate > 0:
		return "Charging"
	case rate == 0:
		return "Not Charging"
	default:
		return "Discharging"
	}
}

func (s *Server) versionHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	v, err := s.gauge.Version()
	s.mu.Unlock()
	if err != nil {
		logger.Errorf("Error reading version: %v", err)
		http.Error(w, "gauge unavailable", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, VersionResponse{Version: v})
}

func (s *Server) compensationHandler(w http.ResponseWriter, r *http.Request) {
	var req CompensationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		http.Error(w, "malformed request", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	err := s.applyCompensation(req)
	s.mu.Unlock()
	if err != nil {
		logger.Errorf("Error applying compensation: %v", err)
		http.Error(w, "gauge unavailable", http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) applyCompensation(req CompensationRequest) error {
	switch {
	case req.Temperature == nil:
		logger.Debug("Applying default RCOMP")
		return errors.Wrap(s.gauge.DefaultTemperatureCompensation(), "default compensation")
	case req.Clamp:
		logger.Debugf("Applying clamped RCOMP for %.1f°C", *req.Temperature)
		return errors.Wrapf(s.gauge.ClampedTemperatureCompensation(*req.Temperature), "compensation at %.1f°C", *req.Temperature)
	default:
		logger.Debugf("Applying RCOMP for %.1f°C", *req.Temperature)
		return errors.Wrapf(s.gauge.TemperatureCompensation(*req.Temperature), "compensation at %.1f°C", *req.Temperature)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("Failed to encode response: %v", err)
	}
}

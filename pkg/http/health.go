package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"interview-coach/pkg/version"

	"github.com/sirupsen/logrus"
)

// HealthStatus represents the health status of the service
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Uptime    string                 `json:"uptime"`
	Version   string                 `json:"version"`
	Checks    map[string]CheckResult `json:"checks"`
	System    SystemInfo             `json:"system"`
}

// CheckResult represents an individual health check result
type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// SystemInfo contains system resource information
type SystemInfo struct {
	GoRoutines       int    `json:"goroutines"`
	MemoryMB         uint64 `json:"memory_mb"`
	CPUCount         int    `json:"cpu_count"`
	ActiveSessions   int    `json:"active_sessions"`
	WebsocketClients int    `json:"websocket_clients"`
}

// HealthHandler handles health check requests
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	health := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Version:   version.Version,
		Checks:    make(map[string]CheckResult),
	}

	if s.sessions != nil {
		stats := s.sessions.GetStats()
		health.System.ActiveSessions = stats.ActiveSessions
		if stats.MaxSessions > 0 && stats.ActiveSessions >= stats.MaxSessions {
			health.Checks["sessions"] = CheckResult{
				Status:  "degraded",
				Message: fmt.Sprintf("Session capacity reached (%d)", stats.MaxSessions),
			}
			health.Status = "degraded"
		} else {
			health.Checks["sessions"] = CheckResult{
				Status:  "healthy",
				Message: "Session manager operational",
			}
		}
	} else {
		health.Checks["sessions"] = CheckResult{
			Status:  "unhealthy",
			Message: "Session manager not available",
		}
		health.Status = "unhealthy"
	}

	if s.wsHandler != nil {
		health.System.WebsocketClients = s.wsHandler.ClientCount()
		provider := s.wsHandler.TranscriptionProvider()
		if provider == "" {
			health.Checks["stt"] = CheckResult{
				Status:  "disabled",
				Message: "No transcription provider configured",
			}
		} else {
			health.Checks["stt"] = CheckResult{
				Status:  "healthy",
				Message: fmt.Sprintf("Transcription provider %s registered", provider),
			}
		}
	}

	if s.amqpClient != nil {
		if s.amqpClient.IsConnected() {
			health.Checks["amqp"] = CheckResult{
				Status:  "healthy",
				Message: "AMQP connected",
			}
		} else {
			health.Checks["amqp"] = CheckResult{
				Status:  "degraded",
				Message: "AMQP disconnected",
			}
			if health.Status == "healthy" {
				health.Status = "degraded"
			}
		}
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	health.System.GoRoutines = runtime.NumGoroutine()
	health.System.MemoryMB = m.Alloc / 1024 / 1024
	health.System.CPUCount = runtime.NumCPU()

	if r.URL.Query().Get("detailed") == "true" {
		s.logger.WithFields(logrus.Fields{
			"status":   health.Status,
			"checks":   health.Checks,
			"system":   health.System,
			"duration": time.Since(startTime),
		}).Debug("Health check performed")
	}

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(health)
}

// LivenessHandler reports that the process is serving requests
func (s *Server) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
}

// ReadinessHandler reports whether new sessions can be accepted
func (s *Server) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ready := s.sessions != nil
	reason := ""
	if !ready {
		reason = "session manager not available"
	} else if stats := s.sessions.GetStats(); stats.MaxSessions > 0 && stats.ActiveSessions >= stats.MaxSessions {
		ready = false
		reason = "session capacity reached"
	}

	response := map[string]interface{}{"ready": ready}
	statusCode := http.StatusOK
	if !ready {
		response["reason"] = reason
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}

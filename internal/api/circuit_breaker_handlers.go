package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

func (s *Server) breakerReport() []map[string]interface{} {
	report := make([]map[string]interface{}, 0, len(s.deps.Breakers))
	for _, b := range s.deps.Breakers {
		report = append(report, b.GetMetrics())
	}
	return report
}

// getCircuitBreakerStatusHandler returns the state of the outbound circuit breakers
func (s *Server) getCircuitBreakerStatusHandler(w http.ResponseWriter, r *http.Request) {
	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: s.breakerReport()})
}

// resetCircuitBreakerHandler resets one circuit breaker to closed state
func (s *Server) resetCircuitBreakerHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	for _, b := range s.deps.Breakers {
		if b.Name() == name {
			b.Reset()
			s.logger.Info("Circuit breaker reset by admin", "breaker", name)
			s.respondWithJSON(w, http.StatusOK, ApiResponse{
				Success: true,
				Data: map[string]string{
					"message": "Circuit breaker reset successfully",
				},
			})
			return
		}
	}

	s.respondWithError(w, http.StatusNotFound, "Circuit breaker not found")
}

package http

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"tribe-quiz-service/internal/app"
)

// ScenariosHandler serves the active scenario set so clients can render options.
type ScenariosHandler struct {
	service *app.QuizService
	logger  *zap.Logger
}

func NewScenariosHandler(service *app.QuizService, logger *zap.Logger) *ScenariosHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScenariosHandler{service: service, logger: logger}
}

func (h *ScenariosHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	set, err := h.service.Scenarios(r.Context())
	if err != nil {
		h.logger.Error("load scenarios", zap.Error(err))
		http.Error(w, "scenarios unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(set); err != nil {
		h.logger.Warn("write scenarios", zap.Error(err))
	}
}

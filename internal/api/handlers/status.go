package handlers

import (
	"net/http"

	"github.com/amaumene/bridgarr/internal/models"
	"github.com/sirupsen/logrus"
)

// StatusCounter counts media items per job status
type StatusCounter interface {
	CountMediasByJobStatus() (map[models.JobStatus]int, error)
}

// StatusHandler handles status requests
type StatusHandler struct {
	store  StatusCounter
	logger *logrus.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(store StatusCounter, logger *logrus.Logger) *StatusHandler {
	return &StatusHandler{
		store:  store,
		logger: logger,
	}
}

// StatusResponse represents the status response
type StatusResponse struct {
	TotalMedias int `json:"total_medias"`
	Queued      int `json:"queued"`
	InProgress  int `json:"in_progress"`
	Done        int `json:"done"`
	Failed      int `json:"failed"`
	// ByJobStatus has one entry per stored job status, the empty status
	// counts items that never ran a job
	ByJobStatus map[models.JobStatus]int `json:"by_job_status"`
}

// ServeHTTP handles the status endpoint
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.CountMediasByJobStatus()
	if err != nil {
		h.logger.WithError(err).Error("Failed to count medias")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	response := StatusResponse{ByJobStatus: counts}
	for status, n := range counts {
		response.TotalMedias += n

		switch status {
		case models.JobStatusQueued:
			response.Queued += n
		case models.JobStatusDone:
			response.Done += n
		case models.JobStatusFailed:
			response.Failed += n
		case models.JobStatusResolvingMetadata, models.JobStatusResolvingSource,
			models.JobStatusCaching, models.JobStatusLinking:
			response.InProgress += n
		}
	}

	writeJSON(w, http.StatusOK, response)
}

package api

import (
	"errors"
	"net/http"

	"github.com/rewired-gh/scorepulse/internal/monitor"
)

// Health check endpoint
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"version":   h.version,
		"timestamp": h.now().UTC(),
	})
}

// Status returns the latest model health report and maintenance job.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if h.maintenance == nil {
		h.errorResponse(w, http.StatusServiceUnavailable, "Maintenance is disabled")
		return
	}
	resp := map[string]interface{}{
		"health": nil,
		"job":    nil,
	}
	if report, err := h.maintenance.LastReport(); err == nil {
		resp["health"] = report
	} else {
		h.logger.Debugw("no health report available", "error", err)
	}
	job, err := h.maintenance.JobStatus()
	if err != nil {
		h.logger.Errorw("failed to read job status", "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Failed to read job status")
		return
	}
	resp["job"] = job
	h.jsonResponse(w, http.StatusOK, resp)
}

// Retrain starts a forced maintenance cycle in the background.
func (h *Handler) Retrain(w http.ResponseWriter, r *http.Request) {
	if h.maintenance == nil {
		h.errorResponse(w, http.StatusServiceUnavailable, "Maintenance is disabled")
		return
	}
	id, err := h.maintenance.Start(h.baseCtx, true)
	if err != nil {
		if errors.Is(err, monitor.ErrCycleRunning) {
			h.errorResponse(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Errorw("failed to start maintenance", "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Failed to start maintenance")
		return
	}
	h.logger.Infow("maintenance started over HTTP", "job_id", id)
	h.jsonResponse(w, http.StatusAccepted, map[string]string{
		"status": "started",
		"job_id": id,
	})
}

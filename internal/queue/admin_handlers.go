package queue

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/noah-isme/backend-grocer/internal/common"
)

type inspector interface {
	Queues() ([]string, error)
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	RunAllArchivedTasks(queue string) (int, error)
}

// AdminHandler exposes queue depth and archived task replay to administrators.
type AdminHandler struct {
	Inspector inspector
}

type queueStats struct {
	Queue     string `json:"queue"`
	Size      int    `json:"size"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
	Processed int    `json:"processedToday"`
	Failed    int    `json:"failedToday"`
	Paused    bool   `json:"paused"`
}

// Stats handles GET /api/v1/admin/queues.
func (h *AdminHandler) Stats(w http.ResponseWriter, _ *http.Request) {
	if h == nil || h.Inspector == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "queue inspector unavailable", nil)
		return
	}
	names, err := h.Inspector.Queues()
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "Failed to load queues.", nil)
		return
	}
	stats := make([]queueStats, 0, len(names))
	for _, name := range names {
		info, err := h.Inspector.GetQueueInfo(name)
		if err != nil {
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "Failed to load queues.", nil)
			return
		}
		stats = append(stats, queueStats{
			Queue:     info.Queue,
			Size:      info.Size,
			Pending:   info.Pending,
			Active:    info.Active,
			Scheduled: info.Scheduled,
			Retry:     info.Retry,
			Archived:  info.Archived,
			Processed: info.Processed,
			Failed:    info.Failed,
			Paused:    info.Paused,
		})
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": stats})
}

// ReplayArchived handles POST /api/v1/admin/queues/{queue}/replay and moves every
// archived task of the queue back to pending.
func (h *AdminHandler) ReplayArchived(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Inspector == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "queue inspector unavailable", nil)
		return
	}
	name := chi.URLParam(r, "queue")
	n, err := h.Inspector.RunAllArchivedTasks(name)
	if err != nil {
		if errors.Is(err, asynq.ErrQueueNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "Queue not found.", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "Failed to replay tasks.", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"queue": name, "replayed": n}})
}

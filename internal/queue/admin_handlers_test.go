package queue_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-grocer/internal/queue"
)

type fakeInspector struct {
	infos    map[string]*asynq.QueueInfo
	replayed []string
}

func (f *fakeInspector) Queues() ([]string, error) {
	return []string{"notifications"}, nil
}

func (f *fakeInspector) GetQueueInfo(name string) (*asynq.QueueInfo, error) {
	info, ok := f.infos[name]
	if !ok {
		return nil, asynq.ErrQueueNotFound
	}
	return info, nil
}

func (f *fakeInspector) RunAllArchivedTasks(name string) (int, error) {
	info, ok := f.infos[name]
	if !ok {
		return 0, asynq.ErrQueueNotFound
	}
	f.replayed = append(f.replayed, name)
	return info.Archived, nil
}

func newAdmin() (*fakeInspector, http.Handler) {
	insp := &fakeInspector{infos: map[string]*asynq.QueueInfo{
		"notifications": {Queue: "notifications", Size: 3, Pending: 2, Archived: 1},
	}}
	h := &queue.AdminHandler{Inspector: insp}
	r := chi.NewRouter()
	r.Get("/api/v1/admin/queues", h.Stats)
	r.Post("/api/v1/admin/queues/{queue}/replay", h.ReplayArchived)
	return insp, r
}

func TestAdminStats(t *testing.T) {
	_, router := newAdmin()
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/admin/queues", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Data []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	require.Equal(t, "notifications", body.Data[0]["queue"])
	require.EqualValues(t, 2, body.Data[0]["pending"])
}

func TestAdminReplayArchived(t *testing.T) {
	insp, router := newAdmin()
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/admin/queues/notifications/replay", nil).WithContext(context.Background()))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, []string{"notifications"}, insp.replayed)
	require.Contains(t, rr.Body.String(), `"replayed":1`)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/admin/queues/ghost/replay", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/options_advisor/internal/alerts"
	"github.com/eddiefleurent/options_advisor/internal/jobs"
	"github.com/eddiefleurent/options_advisor/internal/models"
	"github.com/eddiefleurent/options_advisor/internal/storage"
)

type fakeJobs struct {
	scanErr    error
	deliverErr error
	scans      int
}

func (f *fakeJobs) RunScan(context.Context) (*jobs.ScanReport, error) {
	f.scans++
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	return &jobs.ScanReport{Failed: 0, Accounts: []jobs.AccountReport{{AccountID: "acct-1"}}}, nil
}

func (f *fakeJobs) RunDelivery(context.Context) (alerts.DeliveryStats, error) {
	if f.deliverErr != nil {
		return alerts.DeliveryStats{}, f.deliverErr
	}
	return alerts.DeliveryStats{Processed: 2, Delivered: 1, Skipped: 1}, nil
}

func seededStore(t *testing.T) *storage.MockStorage {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMockStorage()
	base := time.Date(2026, 1, 5, 15, 0, 0, 0, time.UTC)

	for i, id := range []string{"rec-1", "rec-2", "rec-3"} {
		require.NoError(t, store.InsertRecommendation(ctx, &models.Recommendation{
			ID:         id,
			AccountID:  "acct-1",
			PositionID: "pos-1",
			Action:     models.ActionHold,
			CreatedAt:  base.Add(time.Duration(i) * time.Hour),
		}))
	}
	for _, id := range []string{"alert-1", "alert-2"} {
		require.NoError(t, store.InsertAlert(ctx, &models.Alert{
			ID:        id,
			Type:      models.JobTypeOptionsScan,
			AccountID: "acct-1",
			Ticker:    "AAPL",
			CreatedAt: base,
		}))
	}
	return store
}

func newTestServer(t *testing.T, store Store, j Jobs, token string) http.Handler {
	t.Helper()
	logger, _ := test.NewNullLogger()
	return NewServer(Config{Port: 0, AuthToken: token}, store, j, logger).Handler()
}

func do(t *testing.T, h http.Handler, method, target string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, seededStore(t), nil, "secret")
	rec := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
}

func TestAuthMiddleware(t *testing.T) {
	h := newTestServer(t, seededStore(t), nil, "secret")

	rec := do(t, h, http.MethodGet, "/api/alerts", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/alerts", map[string]string{"X-Auth-Token": "secret"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/alerts?token=secret", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListRecommendations(t *testing.T) {
	h := newTestServer(t, seededStore(t), nil, "")

	rec := do(t, h, http.MethodGet, "/api/recommendations?account_id=acct-1&limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got []models.Recommendation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "rec-3", got[0].ID, "newest first")

	rec = do(t, h, http.MethodGet, "/api/recommendations?account_id=nobody", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/recommendations?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAlertsAcknowledgeFlow(t *testing.T) {
	h := newTestServer(t, seededStore(t), nil, "")

	rec := do(t, h, http.MethodPost, "/api/alerts/alert-1/ack", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "acknowledged")

	var list []models.Alert
	rec = do(t, h, http.MethodGet, "/api/alerts", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "alert-2", list[0].ID)

	rec = do(t, h, http.MethodGet, "/api/alerts?include_acknowledged=true", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 2)

	rec = do(t, h, http.MethodGet, "/api/alerts/alert-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var one models.Alert
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &one))
	assert.True(t, one.Acknowledged)

	rec = do(t, h, http.MethodGet, "/api/alerts?include_acknowledged=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAlertNotFound(t *testing.T) {
	h := newTestServer(t, seededStore(t), nil, "")

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/alerts/missing", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/api/alerts/missing/ack", nil).Code)
}

func TestListAlerts_StoreFailure(t *testing.T) {
	store := seededStore(t)
	store.ListError = errors.New("db down")
	h := newTestServer(t, store, nil, "")

	rec := do(t, h, http.MethodGet, "/api/alerts", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db down")
}

func TestTriggerEndpoints(t *testing.T) {
	j := &fakeJobs{}
	h := newTestServer(t, seededStore(t), j, "")

	rec := do(t, h, http.MethodPost, "/api/scan", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"account_id":"acct-1"`)
	assert.Equal(t, 1, j.scans)

	rec = do(t, h, http.MethodPost, "/api/deliver", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"processed":2,"delivered":1,"failed":0,"skipped":1}`, rec.Body.String())

	j.scanErr = jobs.ErrBusy
	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, "/api/scan", nil).Code)

	j.deliverErr = errors.New("boom")
	assert.Equal(t, http.StatusInternalServerError, do(t, h, http.MethodPost, "/api/deliver", nil).Code)
}

func TestTriggerEndpointsDisabledWithoutJobs(t *testing.T) {
	h := newTestServer(t, seededStore(t), nil, "")
	rec := do(t, h, http.MethodPost, "/api/scan", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

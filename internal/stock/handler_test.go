package stock

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SIMS-backend/internal/platform/events"
)

func newTestRouter() (*gin.Engine, *Service) {
	gin.SetMode(gin.TestMode)
	svc := NewService(NewInMemoryStore(), events.Nop{}, zerolog.Nop())
	r := gin.New()
	RegisterRoutes(r, svc)
	return r, svc
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestBatchEndpoints(t *testing.T) {
	r, _ := newTestRouter()

	w := doJSON(t, r, http.MethodPost, "/batches", gin.H{
		"kind":           "CPO",
		"start_serial":   "CPO100",
		"end_serial":     "CPO104",
		"branch_id":      "BR-001",
		"process_id":     "P1",
		"sub_process_id": "SP1",
		"created_by":     gin.H{"id": "T-01", "name": "Gamlet"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var sum BatchSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sum))
	assert.Equal(t, 5, sum.TotalUnits)
	assert.Equal(t, "/batches/"+sum.ParentID, w.Header().Get("Location"))

	w = doJSON(t, r, http.MethodGet, "/batches/"+sum.ParentID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/batches/"+sum.ParentID+"/counters", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var c CounterSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &c))
	assert.Equal(t, 5, c.Available)

	w = doJSON(t, r, http.MethodGet, "/batches?branch_id=BR-001", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/batches/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRegisterBatchBadRequest(t *testing.T) {
	r, _ := newTestRouter()

	// Missing required fields.
	w := doJSON(t, r, http.MethodPost, "/batches", gin.H{"kind": "CPO"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Indivisible checkbook range surfaces the domain code.
	w = doJSON(t, r, http.MethodPost, "/batches", gin.H{
		"kind":           "CHECKBOOK",
		"start_serial":   "CB1001",
		"end_serial":     "CB1049",
		"leaves":         25,
		"branch_id":      "BR-001",
		"process_id":     "P1",
		"sub_process_id": "SP1",
		"created_by":     gin.H{"id": "T-01", "name": "Gamlet"},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	var e errorDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	assert.Equal(t, CodeIndivisibleRange, e.Error.Code)
}

func TestIssuanceEndpoints(t *testing.T) {
	r, _ := newTestRouter()

	w := doJSON(t, r, http.MethodPost, "/batches", gin.H{
		"kind":           "CPO",
		"start_serial":   "CPO200",
		"end_serial":     "CPO201",
		"branch_id":      "BR-001",
		"process_id":     "P1",
		"sub_process_id": "SP1",
		"created_by":     gin.H{"id": "T-01", "name": "Gamlet"},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, r, http.MethodPost, "/issuances", gin.H{
		"branch_id":      "BR-001",
		"kind":           "CPO",
		"account_number": "ACC-9001",
		"issued_by":      gin.H{"id": "T-01", "name": "Gamlet"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var rec IssuanceRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, "CPO200", rec.StartSerial)
	assert.Equal(t, "/issuances/"+rec.RequestID, w.Header().Get("Location"))

	// Same teller confirming their own issuance is a conflict.
	w = doJSON(t, r, http.MethodPost, "/issuances/"+rec.RequestID+"/receive", gin.H{
		"received_by": gin.H{"id": "T-01", "name": "Gamlet"},
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, r, http.MethodPost, "/issuances/"+rec.RequestID+"/receive", gin.H{
		"received_by": gin.H{"id": "T-02", "name": "Satenik"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, r, http.MethodGet, "/items?serial=CPO200", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var item ItemSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &item))
	assert.NotNil(t, item.ReceivedAt)
	assert.Equal(t, 1, item.BatchUsed)

	w = doJSON(t, r, http.MethodPost, "/returns", gin.H{
		"serial":      "CPO200",
		"returned_by": gin.H{"id": "T-02", "name": "Satenik"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Double return is a conflict.
	w = doJSON(t, r, http.MethodPost, "/returns", gin.H{
		"serial":      "CPO200",
		"returned_by": gin.H{"id": "T-02", "name": "Satenik"},
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestDeleteBatchEndpoint(t *testing.T) {
	r, svc := newTestRouter()

	sum, err := svc.RegisterBatch(context.Background(), RegisterBatchRequest{
		Kind:         KindCpo,
		StartSerial:  "CPO300",
		EndSerial:    "CPO301",
		BranchID:     "BR-001",
		ProcessID:    "P1",
		SubProcessID: "SP1",
		CreatedBy:    Actor{ID: "T-01", Name: "Gamlet"},
	})
	require.NoError(t, err)

	w := doJSON(t, r, http.MethodDelete, "/batches/"+sum.ParentID, gin.H{
		"actor": gin.H{"id": "T-01", "name": "Gamlet"},
	})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, r, http.MethodGet, "/batches/"+sum.ParentID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

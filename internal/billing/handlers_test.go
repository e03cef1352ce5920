package billing

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoopstack/backend-scoopstack/internal/common"
)

func authedJSON(t *testing.T, target string, payload any) *http.Request {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req.WithContext(common.WithSession(req.Context(), common.Session{UserID: "user-1"}))
}

func TestEditLinesToggleFree(t *testing.T) {
	handler := &Handler{}

	lines := NewLines(2)
	lines = UpdateLine(lines, 0, FieldPrice, "100", nil)

	req := authedJSON(t, "/billing/lines", map[string]any{
		"lines": lines,
		"op":    "toggleFree",
		"index": 0,
	})
	rec := httptest.NewRecorder()
	handler.EditLines(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data struct {
			Lines  []LineItem `json:"lines"`
			Totals BillTotals `json:"totals"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Data.Lines[0].Free)
	assert.Zero(t, resp.Data.Lines[0].Total)
	assert.Zero(t, resp.Data.Totals.SubTotal)
}

func TestEditLinesAddAppendsRow(t *testing.T) {
	handler := &Handler{}

	req := authedJSON(t, "/billing/lines", map[string]any{
		"lines": NewLines(15),
		"op":    "add",
	})
	rec := httptest.NewRecorder()
	handler.EditLines(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data struct {
			Lines []LineItem `json:"lines"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Data.Lines, 16)
}

func TestEditLinesRejectsUnknownOp(t *testing.T) {
	handler := &Handler{}

	req := authedJSON(t, "/billing/lines", map[string]any{
		"lines": NewLines(1),
		"op":    "remove",
	})
	rec := httptest.NewRecorder()
	handler.EditLines(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEditLinesRequiresSession(t *testing.T) {
	handler := &Handler{}

	body, err := json.Marshal(map[string]any{"lines": NewLines(1), "op": "add"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/billing/lines", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.EditLines(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSerialEndpointAllocates(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	handler := &Handler{Sequence: Sequence{Client: client, Now: func() time.Time {
		return time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	}}}

	req := authedJSON(t, "/billing/serial", map[string]any{})
	rec := httptest.NewRecorder()
	handler.Serial(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data SerialNumber `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "080001", resp.Data.Value)
}

func TestNewDraftReturnsFifteenRows(t *testing.T) {
	handler := &Handler{}

	req := httptest.NewRequest(http.MethodGet, "/billing/draft", nil)
	req = req.WithContext(common.WithSession(req.Context(), common.Session{UserID: "user-1"}))
	rec := httptest.NewRecorder()
	handler.NewDraft(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data struct {
			Lines []LineItem `json:"lines"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data.Lines, 15)
	assert.Equal(t, 1.0, resp.Data.Lines[0].Quantity)
}

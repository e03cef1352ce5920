package bank

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoopstack/backend-scoopstack/internal/common"
)

func newBankRouter() http.Handler {
	handler := &Handler{Service: NewService(nil)}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(common.WithSession(req.Context(), common.Session{UserID: "user-1"})))
		})
	})
	r.Post("/bank", handler.Upsert)
	r.Put("/bank", handler.Upsert)
	return r
}

func TestUpsertReachableViaPostAndPut(t *testing.T) {
	router := newBankRouter()

	// An incomplete payload fails validation before the store is touched, so
	// both verbs exercise the full handler path without a database.
	for _, method := range []string{http.MethodPost, http.MethodPut} {
		t.Run(method, func(t *testing.T) {
			req := httptest.NewRequest(method, "/bank", strings.NewReader(`{"bankName":"State Bank"}`))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
		})
	}
}

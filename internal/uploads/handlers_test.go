package uploads

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoopstack/backend-scoopstack/internal/common"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func multipartBody(t *testing.T, fields map[string]string, filename string, file []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if file != nil {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func authedRequest(method, target string, body *bytes.Buffer, contentType string) *http.Request {
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", contentType)
	ctx := common.WithSession(req.Context(), common.Session{UserID: "user-1"})
	return req.WithContext(ctx)
}

func TestUploadStoresImageAndReturnsDescriptor(t *testing.T) {
	dir := t.TempDir()
	handler := &Handler{Store: LocalStore{Dir: dir, BaseURL: "http://localhost:8080/static"}}

	body, contentType := multipartBody(t, map[string]string{"folder": "logos", "tag": "logo"},
		"logo.png", pngBytes(t, 32, 16))
	req := authedRequest(http.MethodPost, "/uploads", body, contentType)
	rec := httptest.NewRecorder()
	handler.Upload(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp struct {
		Data Asset `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 32, resp.Data.Width)
	assert.Equal(t, 16, resp.Data.Height)
	assert.Equal(t, "png", resp.Data.Format)
	assert.Equal(t, "logos", resp.Data.Folder)
	assert.Contains(t, resp.Data.URL, "http://localhost:8080/static/user-1/logos/")
	assert.Positive(t, resp.Data.Bytes)
}

func TestUploadRequiresFile(t *testing.T) {
	handler := &Handler{Store: LocalStore{Dir: t.TempDir(), BaseURL: "http://x"}}

	body, contentType := multipartBody(t, map[string]string{"tag": "logo"}, "", nil)
	req := authedRequest(http.MethodPost, "/uploads", body, contentType)
	rec := httptest.NewRecorder()
	handler.Upload(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadRequiresSession(t *testing.T) {
	handler := &Handler{Store: LocalStore{Dir: t.TempDir(), BaseURL: "http://x"}}

	body, contentType := multipartBody(t, nil, "logo.png", pngBytes(t, 4, 4))
	req := httptest.NewRequest(http.MethodPost, "/uploads", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.Upload(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSanitizeSegmentStripsUnsafeRunes(t *testing.T) {
	assert.Equal(t, "qr-codes", sanitizeSegment(" QR-Codes "))
	assert.Equal(t, "abc123", sanitizeSegment("a/b/c 1.2.3"))
}

package uploads

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/scoopstack/backend-scoopstack/internal/common"
)

const maxUploadBytes = 5 << 20

// Asset describes a stored upload.
type Asset struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Bytes  int    `json:"bytes"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Format string `json:"format,omitempty"`
	Folder string `json:"folder,omitempty"`
	Tag    string `json:"tag,omitempty"`
}

// Handler accepts multipart image uploads for logos, signatures, and QR codes.
type Handler struct {
	Store Store
}

// Upload handles POST /api/v1/uploads/image. The multipart form carries the file
// plus optional folder and tag fields.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "upload store not configured", nil)
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid multipart payload", nil)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "file field is required", nil)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "could not read upload", nil)
		return
	}
	if len(data) > maxUploadBytes {
		common.JSONError(w, http.StatusRequestEntityTooLarge, "TOO_LARGE", "upload exceeds the 5 MB limit", nil)
		return
	}

	folder := sanitizeSegment(r.FormValue("folder"))
	tag := strings.TrimSpace(r.FormValue("tag"))

	asset := Asset{
		ID:     uuid.NewString(),
		Bytes:  len(data),
		Folder: folder,
		Tag:    tag,
	}

	contentType := header.Header.Get("Content-Type")
	if cfg, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		asset.Width = cfg.Width
		asset.Height = cfg.Height
		asset.Format = format
	}

	ext := strings.ToLower(path.Ext(header.Filename))
	if ext == "" && asset.Format != "" {
		ext = "." + asset.Format
	}
	key := fmt.Sprintf("%s/%s%s", userID, asset.ID, ext)
	if folder != "" {
		key = fmt.Sprintf("%s/%s/%s%s", userID, folder, asset.ID, ext)
	}

	url, err := h.Store.Save(r.Context(), key, data, contentType)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	asset.URL = url

	common.JSON(w, http.StatusCreated, map[string]any{"data": asset})
}

func sanitizeSegment(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}

package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/eldtechnologies/roomlog/internal/metrics"
	"github.com/eldtechnologies/roomlog/internal/models"
)

// UploadBucket is the file_bucket recorded for uploaded attachments.
const UploadBucket = "uploads"

// multipartMemory is the part of a multipart body kept in memory; the
// rest spills to temporary files.
const multipartMemory = 8 << 20

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// Upload handles a multipart file upload into a room. The file is stored
// under the upload directory and announced as a file message.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	room := chi.URLParam(r, "id")
	if !validRoom(room) {
		h.Error(w, http.StatusBadRequest, "invalid room name")
		return
	}

	if h.maxUpload > 0 {
		// Room for the multipart envelope and form fields.
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+1<<20)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.Error(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		h.Error(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.Error(w, http.StatusBadRequest, "missing file (field 'file')")
		return
	}
	defer file.Close()

	if h.maxUpload > 0 && header.Size > h.maxUpload {
		h.Error(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	now := time.Now()
	object := objectName(header.Filename, now)
	size, err := h.saveUpload(object, file)
	if err != nil {
		h.logger.Error().Err(err).Str("room", room).Str("object", object).Msg("upload write failed")
		h.Error(w, http.StatusInternalServerError, "failed to store file")
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = mime.TypeByExtension(filepath.Ext(header.Filename))
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	name := sanitizeName(header.Filename)
	if name == "" {
		name = object
	}

	msg, err := h.gw.Insert(r.Context(), room, models.Raw{
		"author":      authorOrAnon(r.FormValue("author"), r.FormValue("autor")),
		"ts":          now.UnixMilli(),
		"file_bucket": UploadBucket,
		"file_object": object,
		"file_name":   name,
		"file_mime":   mimeType,
		"file_size":   size,
	})
	if err != nil {
		if rmErr := os.Remove(filepath.Join(h.uploadDir, object)); rmErr != nil {
			h.logger.Warn().Err(rmErr).Str("object", object).Msg("orphaned upload not removed")
		}
		h.gatewayError(w, err)
		return
	}

	metrics.UploadsStored.Inc()
	h.logger.Info().Str("room", room).Str("object", object).Int64("size", size).Msg("file uploaded")
	h.JSON(w, http.StatusCreated, newMessageResponse(msg))
}

// saveUpload copies src to a new file named object in the upload directory.
func (h *Handler) saveUpload(object string, src io.Reader) (int64, error) {
	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		return 0, err
	}
	dst, err := os.OpenFile(filepath.Join(h.uploadDir, object), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst.Name())
		return 0, err
	}
	return n, nil
}

// objectName builds "<unix ms>_<safe name>". Names with nothing safe left
// fall back to a UUIDv7.
func objectName(original string, now time.Time) string {
	safe := unsafeFileChars.ReplaceAllString(filepath.Base(original), "_")
	if strings.Trim(safe, "._") == "" {
		safe = uuid.Must(uuid.NewV7()).String()
	}
	return fmt.Sprintf("%d_%s", now.UnixMilli(), safe)
}

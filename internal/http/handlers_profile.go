package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"finsight/internal/core"
	"finsight/internal/log"
	"finsight/internal/objstore"
)

const maxAvatarBytes = 5 << 20

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.userID(w, r)
	if !ok {
		return
	}
	p, err := s.deps.Finance.GetProfile(r.Context(), uid)
	if err != nil {
		s.writeError(w, r, log.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, core.ViewOfProfile(p))
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.userID(w, r)
	if !ok {
		return
	}
	var req profilePatchRequest
	if s.badRequest(w, r, log.OpUpdate, decodeJSON(w, r, &req)) {
		return
	}
	patch := req.patch()
	if err := patch.Validate(); err != nil {
		s.writeError(w, r, log.OpUpdate, err)
		return
	}
	p, err := s.deps.Finance.UpdateProfile(r.Context(), uid, patch)
	if err != nil {
		s.writeError(w, r, log.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, core.ViewOfProfile(p))
}

// handleUploadAvatar stores a multipart "file" at the caller-chosen "path",
// which must live under the caller's own directory, and returns {url}.
func (s *Server) handleUploadAvatar(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.userID(w, r)
	if !ok {
		return
	}
	if s.deps.Bucket == nil {
		writeAPIError(w, http.StatusServiceUnavailable, "unavailable", "object storage not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarBytes+64<<10)
	if err := r.ParseMultipartForm(maxAvatarBytes); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid request body", "expected multipart form with path and file (max 5MB)")
		return
	}
	defer r.MultipartForm.RemoveAll()

	path := strings.TrimSpace(r.FormValue("path"))
	if err := objstore.CheckPath(uid, path); err != nil {
		s.writeError(w, r, log.OpUpload, err)
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid request body", "missing file")
		return
	}
	defer file.Close()

	contentType, err := sniffImage(file)
	if err != nil {
		s.writeError(w, r, log.OpUpload, err)
		return
	}

	url, err := s.deps.Bucket.Put(r.Context(), path, contentType, file)
	if err != nil {
		s.writeError(w, r, log.OpUpload, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Avatar uploaded",
		log.FieldUserID, uid.String(),
		log.FieldObjectPath, path)
	writeJSON(w, http.StatusCreated, map[string]string{"url": url})
}

// handleDeleteAvatar removes the object behind ?url=, which must belong to
// the caller. A missing object is not an error.
func (s *Server) handleDeleteAvatar(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.userID(w, r)
	if !ok {
		return
	}
	if s.deps.Bucket == nil {
		writeAPIError(w, http.StatusServiceUnavailable, "unavailable", "object storage not configured")
		return
	}
	publicURL := r.URL.Query().Get("url")
	path, err := s.deps.Bucket.PathOf(publicURL)
	if err == nil {
		err = objstore.CheckPath(uid, path)
	}
	if err != nil {
		s.writeError(w, r, log.OpDelete, err)
		return
	}
	if err := s.deps.Bucket.Delete(r.Context(), publicURL); err != nil {
		s.writeError(w, r, log.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

var errNotImage = fmt.Errorf("%w: avatar must be a PNG, JPEG, GIF or WebP image", core.ErrInvalidInput)

// sniffImage checks the leading bytes and rewinds the file.
func sniffImage(f io.ReadSeeker) (string, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	detected := http.DetectContentType(head[:n])
	switch detected {
	case "image/png", "image/jpeg", "image/gif", "image/webp":
		return detected, nil
	}
	return "", errNotImage
}

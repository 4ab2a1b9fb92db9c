package api

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"social-chat-core/middleware"
)

const maxUploadBytes = 32 << 20 // 32 MB

// UploadHandler stores message image attachments on disk and hands back the
// path the sender puts in its message payload. The same path comes back out
// as image_path on the push shape and is served statically.
type UploadHandler struct {
	dir string
}

func NewUploadHandler(dir string) *UploadHandler {
	if dir == "" {
		dir = "uploads"
	}
	return &UploadHandler{dir: dir}
}

// UploadImage handles POST /uploads.
func (h *UploadHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.UsernameFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "Error parsing multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "Error retrieving file: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	allowedTypes := map[string]bool{
		"image/jpeg": true,
		"image/jpg":  true,
		"image/png":  true,
		"image/gif":  true,
	}
	if !allowedTypes[header.Header.Get("Content-Type")] {
		http.Error(w, "Invalid file type. Only JPEG, PNG, and GIF are allowed.", http.StatusBadRequest)
		return
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	allowedExts := map[string]bool{
		".jpg":  true,
		".jpeg": true,
		".png":  true,
		".gif":  true,
	}
	if !allowedExts[ext] {
		http.Error(w, "Invalid file extension. Only .jpg, .jpeg, .png, and .gif are allowed.", http.StatusBadRequest)
		return
	}

	if err := os.MkdirAll(h.dir, os.ModePerm); err != nil {
		log.Printf("Error creating uploads directory: %v", err)
		http.Error(w, "Error creating uploads directory", http.StatusInternalServerError)
		return
	}

	filename := fmt.Sprintf("%s_%d%s", username, time.Now().UnixNano(), ext)
	dst, err := os.Create(filepath.Join(h.dir, filename))
	if err != nil {
		log.Printf("Error creating file: %v", err)
		http.Error(w, "Error creating file", http.StatusInternalServerError)
		return
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		log.Printf("Error saving file: %v", err)
		http.Error(w, "Error saving file", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"image_path": "/uploads/" + filename})
}

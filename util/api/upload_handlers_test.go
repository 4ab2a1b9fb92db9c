package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-chat-core/middleware"
)

// multipartImage builds a multipart body with one image part.
func multipartImage(t *testing.T, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	return &buf, mw.FormDataContentType()
}

func uploadRequest(t *testing.T, username, filename, contentType string, data []byte) *http.Request {
	t.Helper()
	body, formType := multipartImage(t, filename, contentType, data)
	r := httptest.NewRequest(http.MethodPost, "/uploads", body)
	r.Header.Set("Content-Type", formType)
	ctx := context.WithValue(r.Context(), middleware.UsernameKey, username)
	return r.WithContext(ctx)
}

func TestUploadImageStoresFile(t *testing.T) {
	dir := t.TempDir()
	h := NewUploadHandler(dir)

	w := httptest.NewRecorder()
	h.UploadImage(w, uploadRequest(t, "alice", "cat.png", "image/png", []byte("png-bytes")))

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.True(t, strings.HasPrefix(resp["image_path"], "/uploads/alice_"))
	assert.True(t, strings.HasSuffix(resp["image_path"], ".png"))

	saved, err := os.ReadFile(filepath.Join(dir, filepath.Base(resp["image_path"])))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(saved))
}

func TestUploadImageRejectsWrongType(t *testing.T) {
	h := NewUploadHandler(t.TempDir())

	w := httptest.NewRecorder()
	h.UploadImage(w, uploadRequest(t, "alice", "notes.txt", "text/plain", []byte("hello")))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid file type")
}

func TestUploadImageRejectsWrongExtension(t *testing.T) {
	h := NewUploadHandler(t.TempDir())

	w := httptest.NewRecorder()
	h.UploadImage(w, uploadRequest(t, "alice", "cat.bmp", "image/png", []byte("data")))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid file extension")
}

func TestUploadImageRequiresAuth(t *testing.T) {
	h := NewUploadHandler(t.TempDir())

	body, formType := multipartImage(t, "cat.png", "image/png", []byte("data"))
	r := httptest.NewRequest(http.MethodPost, "/uploads", body)
	r.Header.Set("Content-Type", formType)

	w := httptest.NewRecorder()
	h.UploadImage(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUploadImageRequiresImagePart(t *testing.T) {
	h := NewUploadHandler(t.TempDir())

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("caption", "no image here"))
	require.NoError(t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, "/uploads", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	r = r.WithContext(context.WithValue(r.Context(), middleware.UsernameKey, "alice"))

	w := httptest.NewRecorder()
	h.UploadImage(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Error retrieving file")
}

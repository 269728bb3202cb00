package coversvc_test

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrupp/library/internal/domain"
	"github.com/mkrupp/library/internal/svc/coversvc"
)

type tokenTable map[string]domain.Identity

func (tt tokenTable) ValidateToken(_ context.Context, token string) (domain.Identity, error) {
	identity, ok := tt[token]
	if !ok {
		return domain.Identity{}, domain.ErrInvalidAuthToken
	}

	return identity, nil
}

//nolint:gochecknoglobals
var tokens = tokenTable{
	"librarian": {UserID: 1, Email: "lib@example.org", Role: domain.RoleLibrarian},
	"reader":    {UserID: 2, Email: "reader@example.org", Role: domain.RoleReader},
}

func multipartBody(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()

	var body bytes.Buffer

	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)

	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	return &body, mw.FormDataContentType()
}

func upload(t *testing.T, h http.Handler, token, path, field string, data []byte) *httptest.ResponseRecorder {
	t.Helper()

	body, contentType := multipartBody(t, field, "front.png", data)

	req := httptest.NewRequest(http.MethodPut, path, body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func request(h http.Handler, method, path, token string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	for key, values := range header {
		req.Header[key] = values
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func TestHTTPTransport_Lifecycle(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	ht := coversvc.NewHTTPTransport(setupTestService(t, cfg), tokens, cfg)
	data := pngBytes(t, 40, 60)

	rec := upload(t, ht, "reader", "/1", coversvc.MultipartFileName, data)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = upload(t, ht, "librarian", "/1", "upload", data)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = upload(t, ht, "librarian", "/1", coversvc.MultipartFileName, data)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var stored struct {
		Cover domain.CoverMeta `json:"cover"`
	}
	require.NoError(t, jsoniter.Unmarshal(rec.Body.Bytes(), &stored))
	assert.Equal(t, coversvc.MIMETypePNG, stored.Cover.MIMEType)

	rec = request(ht, http.MethodGet, "/1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = request(ht, http.MethodGet, "/1", "reader", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, data, rec.Body.Bytes())
	assert.Equal(t, coversvc.MIMETypePNG, rec.Header().Get("Content-Type"))

	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	rec = request(ht, http.MethodGet, "/1", "reader", http.Header{"If-None-Match": {etag}})
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.Bytes())

	rec = request(ht, http.MethodGet, "/1?width=20", "reader", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, etag, rec.Header().Get("ETag"))

	rec = request(ht, http.MethodGet, "/1?width=abc", "reader", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = request(ht, http.MethodDelete, "/1", "reader", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = request(ht, http.MethodDelete, "/1", "librarian", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = request(ht, http.MethodGet, "/1", "reader", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = request(ht, http.MethodDelete, "/1", "librarian", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTPTransport_UploadRejects(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MaxSize = 64
	ht := coversvc.NewHTTPTransport(setupTestService(t, cfg), tokens, cfg)

	rec := upload(t, ht, "librarian", "/1", coversvc.MultipartFileName, pngBytes(t, 40, 40))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "too large")

	rec = upload(t, ht, "librarian", "/1", coversvc.MultipartFileName, []byte("plain text"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = upload(t, ht, "librarian", "/42", coversvc.MultipartFileName, []byte("\x89PNG\r\n\x1A\n"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

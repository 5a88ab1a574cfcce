package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/gin-gonic/gin"

	"clipsync-server/internal/clip"
	"clipsync-server/internal/token"
)

func newTestDeps(t *testing.T) (*gin.Engine, *clip.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	signer, err := token.NewSigner("test-secret", "test")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	registry := clip.NewRegistry(clip.RegistryOptions{Signer: signer})
	r := NewRouter(Deps{Registry: registry, Signer: signer, MaxFileBytes: 25 * 1024 * 1024})
	return r, registry
}

func createSession(t *testing.T, r *gin.Engine) string {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		SessionID string `json:"sessionId"`
		ExpiresAt int64  `json:"expiresAt"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.SessionID == "" || resp.ExpiresAt == 0 {
		t.Fatalf("unexpected create response: %s", w.Body.String())
	}
	return resp.SessionID
}

func TestCreateAndInfo(t *testing.T) {
	r, _ := newTestDeps(t)
	id := createSession(t, r)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/"+id, nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/sessions/unknown", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", w.Code)
	}
}

func uploadFile(t *testing.T, r *gin.Engine, sessionID, name, mimeType string, payload []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="`+name+`"`)
	hdr.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		t.Fatalf("CreatePart: %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/"+sessionID+"/items/file", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	r.ServeHTTP(w, req)
	return w
}

func TestUploadAndDownloadRoundTrip(t *testing.T) {
	r, _ := newTestDeps(t)
	id := createSession(t, r)

	payload := []byte("file contents")
	w := uploadFile(t, r, id, "notes.txt", "text/plain", payload)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Item struct {
			ID            string `json:"id"`
			Kind          string `json:"kind"`
			Size          int64  `json:"size"`
			DownloadToken string `json:"downloadToken"`
		} `json:"item"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Item.Kind != "file" || resp.Item.Size != int64(len(payload)) || resp.Item.DownloadToken == "" {
		t.Fatalf("unexpected item: %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/"+id+"/items/"+resp.Item.ID+"/download?token="+resp.Item.DownloadToken, nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body, _ := io.ReadAll(w.Body)
	if !bytes.Equal(body, payload) {
		t.Fatalf("expected payload round-trip, got %q", body)
	}

	// A bad token never resolves.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/sessions/"+id+"/items/"+resp.Item.ID+"/download?token=garbage", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for bad token, got %d", w.Code)
	}
}

func TestUpload_RejectsOnEndedSession(t *testing.T) {
	r, registry := newTestDeps(t)
	id := createSession(t, r)

	if !registry.End(id) {
		t.Fatalf("expected end to run")
	}

	w := uploadFile(t, r, id, "late.txt", "text/plain", []byte("x"))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after end, got %d: %s", w.Code, w.Body.String())
	}
}

func TestDownload_NotFoundAfterSessionEnd(t *testing.T) {
	r, registry := newTestDeps(t)
	id := createSession(t, r)

	w := uploadFile(t, r, id, "notes.txt", "text/plain", []byte("data"))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Item struct {
			ID            string `json:"id"`
			DownloadToken string `json:"downloadToken"`
		} `json:"item"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	registry.End(id)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/"+id+"/items/"+resp.Item.ID+"/download?token="+resp.Item.DownloadToken, nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after session end, got %d", w.Code)
	}
}

func TestHealth(t *testing.T) {
	r, _ := newTestDeps(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSignatureURLFallsBackToUnelevated(t *testing.T) {
	fixture := newTestRouter(t)
	fixture.files.elevatedErr = errors.New("elevation denied")
	fixture.files.fallbackURL = "https://cdn.example/public"

	var payload struct {
		URL string `json:"url"`
	}
	recorder := fixture.doAuthorized(t, http.MethodGet, "/signatures/file-1/url", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", recorder.Code, recorder.Body.String())
	}
	decodeEnvelope(t, recorder, &payload)
	if payload.URL != "https://cdn.example/public" {
		t.Fatalf("unexpected url %q", payload.URL)
	}
}

func TestSignatureFetchReturnsDataURLAndFillsCache(t *testing.T) {
	fixture := newTestRouter(t)
	imageServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 0x50})
	}))
	defer imageServer.Close()

	body := fmt.Sprintf(`{"imageUrl":%q,"submissionId":"sub-1"}`, imageServer.URL)
	recorder := fixture.doAuthorized(t, http.MethodPost, "/signatures/fetch", strings.NewReader(body))
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", recorder.Code, recorder.Body.String())
	}
	var payload struct {
		DataURL string `json:"dataUrl"`
	}
	decodeEnvelope(t, recorder, &payload)
	if !strings.HasPrefix(payload.DataURL, "data:image/png;base64,") {
		t.Fatalf("unexpected data url %q", payload.DataURL)
	}

	cached := fixture.doAuthorized(t, http.MethodGet, "/signatures/cache/sub-1", nil)
	if cached.Code != http.StatusOK {
		t.Fatalf("expected cached signature, got %d: %s", cached.Code, cached.Body.String())
	}
	var cachedPayload struct {
		DataURL string `json:"dataUrl"`
	}
	decodeEnvelope(t, cached, &cachedPayload)
	if cachedPayload.DataURL != payload.DataURL {
		t.Fatalf("cached value mismatch")
	}
}

func TestSignatureCacheMissReturnsNotFound(t *testing.T) {
	fixture := newTestRouter(t)

	recorder := fixture.doAuthorized(t, http.MethodGet, "/signatures/cache/sub-unknown", nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected %d, got %d", http.StatusNotFound, recorder.Code)
	}
}

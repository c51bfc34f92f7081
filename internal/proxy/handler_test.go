package proxy

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/wpedge/wpedge/internal/logging"
)

func newProxyApp(t *testing.T, opts Options) *fiber.App {
	t.Helper()
	h := NewHandler(nil, logging.Discard(), opts)
	app := fiber.New()
	app.Get("/api/rankmath", h.Handle)
	return app
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	raw, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return body
}

func TestProxyRejectsWhenDisabled(t *testing.T) {
	app := newProxyApp(t, Options{Origin: "http://seo.invalid", Enabled: false})
	resp, err := app.Test(httptest.NewRequest("GET", "/api/rankmath?url=https://example.com/a/", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["success"] != false || body["error"] == "" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestProxyRequiresURL(t *testing.T) {
	app := newProxyApp(t, Options{Origin: "http://seo.invalid", Enabled: true})
	resp, err := app.Test(httptest.NewRequest("GET", "/api/rankmath", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestProxyForwardsStatusAndBody(t *testing.T) {
	var gotURL string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURL = r.URL.Query().Get("url")
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "https://other.example")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"success":false,"head":""}`))
	}))
	defer upstream.Close()

	app := newProxyApp(t, Options{Origin: upstream.URL + "/wp-json/rankmath/v1/getHead", Enabled: true})
	resp, err := app.Test(httptest.NewRequest("GET", "/api/rankmath?url=https%3A%2F%2Fbackend.example.com%2Fa%2F", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected upstream status 404, got %d", resp.StatusCode)
	}
	if gotURL != "https://backend.example.com/a/" {
		t.Fatalf("unexpected forwarded url %q", gotURL)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("upstream CORS headers must not leak through")
	}
	body := decodeBody(t, resp)
	if body["success"] != false {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestProxyMapsTimeoutTo408(t *testing.T) {
	release := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer upstream.Close()
	defer close(release)

	app := newProxyApp(t, Options{Origin: upstream.URL, Enabled: true, Timeout: 50 * time.Millisecond})
	resp, err := app.Test(httptest.NewRequest("GET", "/api/rankmath?url=x", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusRequestTimeout {
		t.Fatalf("expected 408, got %d", resp.StatusCode)
	}
}

func TestProxyMapsNetworkErrorTo502(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	origin := upstream.URL
	upstream.Close()

	app := newProxyApp(t, Options{Origin: origin, Enabled: true, Timeout: time.Second})
	resp, err := app.Test(httptest.NewRequest("GET", "/api/rankmath?url=x", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
}

func TestUpstreamURL(t *testing.T) {
	cases := map[string]string{
		"https://seo.example.com/getHead":   "https://seo.example.com/getHead?url=https%3A%2F%2Fa.com%2Fb%2F",
		"https://seo.example.com/api?key=1": "https://seo.example.com/api?key=1&url=https%3A%2F%2Fa.com%2Fb%2F",
		" https://seo.example.com/getHead ": "https://seo.example.com/getHead?url=https%3A%2F%2Fa.com%2Fb%2F",
	}
	for origin, want := range cases {
		if got := UpstreamURL(origin, "https://a.com/b/"); got != want {
			t.Fatalf("UpstreamURL(%q) = %q, want %q", origin, got, want)
		}
	}
}

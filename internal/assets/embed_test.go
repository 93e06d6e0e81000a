package assets

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMimeFromExt(t *testing.T) {
	tests := []struct {
		ext  string
		want string
	}{
		{".js", "application/javascript"},
		{".mjs", "application/javascript"},
		{".css", "text/css; charset=utf-8"},
		{".woff2", "font/woff2"},
		{".svg", "image/svg+xml"},
		{".map", "application/json"},
		{".qqqqqq", "application/octet-stream"},
	}
	for _, tt := range tests {
		if got := mimeFromExt(tt.ext); got != tt.want {
			t.Errorf("mimeFromExt(%q) = %q, want %q", tt.ext, got, tt.want)
		}
	}
}

func TestURL(t *testing.T) {
	got := URL("cosint.css")
	if !strings.HasPrefix(got, "/static/cosint.css?v=") {
		t.Errorf("URL(cosint.css) = %q, want versioned /static/ URL", got)
	}
	if len(strings.TrimPrefix(got, "/static/cosint.css?v=")) != 8 {
		t.Errorf("URL(cosint.css) = %q, want 8-char version", got)
	}

	if got := URL("missing.js"); got != "/static/missing.js" {
		t.Errorf("URL(missing.js) = %q, want unversioned", got)
	}
}

func TestFileServer(t *testing.T) {
	handler := FileServer()

	tests := []struct {
		name        string
		target      string
		wantStatus  int
		wantType    string
		wantCaching string
	}{
		{"versioned stylesheet", URL("cosint.css"), http.StatusOK, "text/css; charset=utf-8", "public, max-age=31536000, immutable"},
		{"versioned script", URL("cosint.js"), http.StatusOK, "application/javascript", "public, max-age=31536000, immutable"},
		{"stale version", "/static/cosint.css?v=00000000", http.StatusOK, "text/css; charset=utf-8", "no-cache"},
		{"unversioned", "/static/cosint.js", http.StatusOK, "application/javascript", "no-cache"},
		{"missing", "/static/nope.css", http.StatusNotFound, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantType != "" && rec.Header().Get("Content-Type") != tt.wantType {
				t.Errorf("Content-Type = %q, want %q", rec.Header().Get("Content-Type"), tt.wantType)
			}
			if got := rec.Header().Get("Cache-Control"); tt.wantCaching != "" && got != tt.wantCaching {
				t.Errorf("Cache-Control = %q, want %q", got, tt.wantCaching)
			}
		})
	}
}

func TestEmbeddedScriptOpensStreams(t *testing.T) {
	rec := httptest.NewRecorder()
	FileServer().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/cosint.js", nil))

	body := rec.Body.String()
	for _, want := range []string{"EventSource", "idempotency_key", "X-CSRF-Token"} {
		if !strings.Contains(body, want) {
			t.Errorf("cosint.js missing %q", want)
		}
	}
}

package scrape

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ShayCichocki/pairline/internal/apperr"
)

const page = `<!DOCTYPE html>
<html>
<head>
  <title>  Release   notes </title>
  <style>body { color: red; }</style>
  <script>var tracking = true;</script>
</head>
<body>
  <h1>Version 2</h1>
  <p>Adds   streaming
     responses.</p>
  <ul><li>Faster</li><li>Smaller</li></ul>
  <noscript>Enable JavaScript</noscript>
</body>
</html>`

func TestHTMLToText(t *testing.T) {
	got, err := HTMLToText(page)
	if err != nil {
		t.Fatal(err)
	}
	want := "Release notes\nVersion 2\nAdds streaming responses.\nFaster\nSmaller"
	if got != want {
		t.Errorf("HTMLToText() =\n%q\nwant\n%q", got, want)
	}
}

func TestScrape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/page":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte(page))
		case "/plain":
			w.Header().Set("Content-Type", "text/plain")
			w.Write([]byte("  just text \n"))
		case "/image":
			w.Header().Set("Content-Type", "image/png")
			w.Write([]byte{0x89, 'P', 'N', 'G'})
		case "/empty":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html><body><script>x()</script></body></html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s := New(WithHTTPClient(srv.Client()))

	tests := []struct {
		name     string
		path     string
		want     string
		wantKind apperr.Kind
	}{
		{name: "html", path: "/page", want: "Release notes\nVersion 2\nAdds streaming responses.\nFaster\nSmaller"},
		{name: "plain text", path: "/plain", want: "just text"},
		{name: "binary", path: "/image", want: ""},
		{name: "no visible text", path: "/empty", want: ""},
		{name: "missing", path: "/missing", wantKind: apperr.KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Scrape(context.Background(), srv.URL+tt.path)
			if tt.wantKind != 0 {
				if apperr.KindOf(err) != tt.wantKind {
					t.Fatalf("expected %v error, got %v", tt.wantKind, err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Scrape() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestScrape_InvalidURL(t *testing.T) {
	s := New()
	for _, u := range []string{"", "ftp://example.com/file", "file:///etc/passwd", "not a url", "http://"} {
		_, err := s.Scrape(context.Background(), u)
		if !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("Scrape(%q): expected validation error, got %v", u, err)
		}
	}
}

func TestScrape_MaxBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(strings.Repeat("a", 100)))
	}))
	defer srv.Close()

	got, err := New(WithHTTPClient(srv.Client()), WithMaxBytes(10)).Scrape(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 10 {
		t.Errorf("read %d bytes, want 10", len(got))
	}
}

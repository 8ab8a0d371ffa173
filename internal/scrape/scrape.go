// Package scrape fetches web pages and reduces them to readable text.
package scrape

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/ShayCichocki/pairline/internal/apperr"
)

// Defaults used when options are not given.
const (
	DefaultTimeout   = 30 * time.Second
	DefaultMaxBytes  = 2 << 20
	DefaultUserAgent = "pairline (+https://github.com/ShayCichocki/pairline)"
)

// Scraper fetches URLs.
type Scraper struct {
	client    *http.Client
	maxBytes  int64
	userAgent string
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithHTTPClient sets the client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Scraper) { s.client = c }
}

// WithMaxBytes caps how much of a response body is read.
func WithMaxBytes(n int64) Option {
	return func(s *Scraper) { s.maxBytes = n }
}

// New creates a Scraper.
func New(opts ...Option) *Scraper {
	s := &Scraper{
		client:    &http.Client{Timeout: DefaultTimeout},
		maxBytes:  DefaultMaxBytes,
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scrape fetches rawURL and returns its text. HTML is reduced to its visible
// text; other textual content is returned as is. An empty string means the
// page had no usable text.
func (s *Scraper) Scrape(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", apperr.New(apperr.KindValidation, "scrape.Scrape", "invalid URL %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,text/plain;q=0.9,*/*;q=0.1")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", apperr.Wrap(apperr.KindNotFound, "scrape.Scrape", fmt.Errorf("fetch %s: %w", u, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", apperr.New(apperr.KindNotFound, "scrape.Scrape", "fetch %s: %s", u, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", u, err)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch {
	case mediaType == "" || mediaType == "text/html" || mediaType == "application/xhtml+xml":
		return HTMLToText(string(body))
	case strings.HasPrefix(mediaType, "text/"), mediaType == "application/json":
		return strings.TrimSpace(string(body)), nil
	default:
		return "", nil
	}
}

// skipped elements never contribute text.
var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Head:     true,
	atom.Svg:      true,
	atom.Iframe:   true,
}

// block elements end a line.
var block = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Pre: true, atom.Blockquote: true, atom.Section: true, atom.Article: true,
	atom.Header: true, atom.Footer: true, atom.Ul: true, atom.Ol: true, atom.Table: true,
	atom.Hr: true, atom.Title: true,
}

// HTMLToText returns the visible text of an HTML document, one block per
// line, with runs of whitespace collapsed. The title, when present, is the
// first line.
func HTMLToText(doc string) (string, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var lines []string
	var cur strings.Builder
	flush := func() {
		line := strings.Join(strings.Fields(cur.String()), " ")
		if line != "" {
			lines = append(lines, line)
		}
		cur.Reset()
	}

	if title := findTitle(root); title != "" {
		lines = append(lines, title)
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			if skipped[n.DataAtom] {
				return
			}
			if block[n.DataAtom] {
				flush()
			}
		case html.TextNode:
			cur.WriteString(n.Data)
			cur.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && block[n.DataAtom] {
			flush()
		}
	}
	walk(root)
	flush()

	return strings.Join(lines, "\n"), nil
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.Title {
		var b strings.Builder
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				b.WriteString(c.Data)
			}
		}
		return strings.Join(strings.Fields(b.String()), " ")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

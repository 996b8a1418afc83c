// Package extractor downloads remote documents and reduces them to plain
// text. Supported formats are pdf, docx and eml, selected by the URL's path
// extension.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/xhad/docqa/internal/logger"
	"github.com/xhad/docqa/internal/models"
)

const (
	DefaultTimeout  = 30 * time.Second
	DefaultMaxBytes = 50 << 20
)

type ExtractorConfig struct {
	Timeout   time.Duration
	RateLimit float64 // requests per second, 0 disables limiting
	MaxBytes  int64
	Client    *http.Client
	TempDir   string
}

// Extractor fetches a document and extracts its text.
type Extractor struct {
	config  ExtractorConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewWithConfig(config ExtractorConfig) *Extractor {
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.MaxBytes == 0 {
		config.MaxBytes = DefaultMaxBytes
	}

	client := config.Client
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}

	return &Extractor{
		config:  config,
		client:  client,
		limiter: limiter,
	}
}

func New() *Extractor {
	return NewWithConfig(ExtractorConfig{})
}

// DetectFormat maps the extension of the URL path to a format. Query string
// and fragment are ignored and matching is case-insensitive.
func DetectFormat(rawURL string) models.Format {
	switch extension(rawURL) {
	case "pdf":
		return models.FormatPDF
	case "docx":
		return models.FormatDOCX
	case "eml":
		return models.FormatEML
	default:
		return models.FormatUnsupported
	}
}

func extension(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	} else if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	return strings.ToLower(strings.TrimPrefix(path.Ext(p), "."))
}

// Extract downloads the document at rawURL and returns its text. The
// format is checked first so unsupported URLs are never fetched.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (*models.Document, error) {
	format := DetectFormat(rawURL)
	if format == models.FormatUnsupported {
		return nil, &UnsupportedFormatError{URL: rawURL, Extension: extension(rawURL)}
	}

	body, err := e.fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	text, err := e.parse(format, body)
	if err != nil {
		return nil, err
	}

	logger.Debug("extracted %d bytes of %s text from %s", len(text), format, rawURL)
	return &models.Document{URL: rawURL, Format: format, Text: text}, nil
}

func (e *Extractor) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("received status code %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.config.MaxBytes+1))
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	if int64(len(body)) > e.config.MaxBytes {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("document exceeds %d bytes", e.config.MaxBytes)}
	}
	return body, nil
}

// parse writes body to a temporary file and runs the format parser on it.
// The file is removed before parse returns.
func (e *Extractor) parse(format models.Format, body []byte) (string, error) {
	f, err := os.CreateTemp(e.config.TempDir, "docqa-*."+string(format))
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	name := f.Name()
	defer os.Remove(name)

	_, werr := f.Write(body)
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}

	var text string
	switch format {
	case models.FormatPDF:
		text, err = readPDF(name)
	case models.FormatDOCX:
		text, err = readDOCX(name)
	case models.FormatEML:
		text, err = readEML(name)
	}
	if err != nil {
		return "", &ParseError{Format: format, Err: err}
	}
	return text, nil
}

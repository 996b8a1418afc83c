package extractor

import (
	"context"
	"errors"
	"fmt"

	"github.com/xhad/docqa/internal/models"
)

// ErrUnsupportedFormat matches every *UnsupportedFormatError.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// UnsupportedFormatError is returned for URLs whose extension is not pdf,
// docx or eml. Nothing is downloaded for such URLs.
type UnsupportedFormatError struct {
	URL       string
	Extension string
}

func (e *UnsupportedFormatError) Error() string {
	if e.Extension == "" {
		return fmt.Sprintf("unsupported document format for %s: no file extension", e.URL)
	}
	return fmt.Sprintf("unsupported document format %q for %s", e.Extension, e.URL)
}

func (e *UnsupportedFormatError) Is(target error) bool {
	return target == ErrUnsupportedFormat
}

// FetchError reports a download that failed at the network level or
// returned a non-2xx status.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("failed to fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Timeout reports whether the fetch gave up waiting for the server.
func (e *FetchError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(e.Err, &t) && t.Timeout()
}

// ParseError reports a downloaded file the format parser could not read.
type ParseError struct {
	Format models.Format
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s document: %v", e.Format, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

package extractor

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/docqa/internal/models"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		url      string
		expected models.Format
	}{
		{"https://example.com/policy.pdf", models.FormatPDF},
		{"https://example.com/policy.PDF?sv=2023&sig=abc", models.FormatPDF},
		{"https://example.com/a/b/report.docx#page=2", models.FormatDOCX},
		{"https://example.com/mail.eml", models.FormatEML},
		{"https://example.com/notes.txt", models.FormatUnsupported},
		{"https://example.com/download?file=x.pdf", models.FormatUnsupported},
		{"https://example.com/", models.FormatUnsupported},
		{"file.docx", models.FormatDOCX},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectFormat(tt.url))
		})
	}
}

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	return NewWithConfig(ExtractorConfig{Timeout: 2 * time.Second, TempDir: t.TempDir()})
}

func serve(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestExtract_UnsupportedNeverFetches(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	doc, err := newTestExtractor(t).Extract(context.Background(), srv.URL+"/notes.txt")
	assert.Nil(t, doc)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	var unsupported *UnsupportedFormatError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "txt", unsupported.Extension)
	assert.Zero(t, hits.Load())
}

func TestExtract_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := newTestExtractor(t).Extract(context.Background(), srv.URL+"/missing.pdf")

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
	assert.False(t, fetchErr.Timeout())
}

func TestExtract_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	e := NewWithConfig(ExtractorConfig{Timeout: 50 * time.Millisecond, TempDir: t.TempDir()})
	_, err := e.Extract(context.Background(), srv.URL+"/slow.pdf")

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.True(t, fetchErr.Timeout())
}

func TestExtract_MaxBytes(t *testing.T) {
	srv := serve(t, bytes.Repeat([]byte("x"), 1024))

	e := NewWithConfig(ExtractorConfig{MaxBytes: 100, TempDir: t.TempDir()})
	_, err := e.Extract(context.Background(), srv.URL+"/big.eml")

	var fetchErr *FetchError
	assert.ErrorAs(t, err, &fetchErr)
}

func TestExtract_InvalidPDF(t *testing.T) {
	srv := serve(t, []byte("this is not a pdf"))

	_, err := newTestExtractor(t).Extract(context.Background(), srv.URL+"/broken.pdf")

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, models.FormatPDF, parseErr.Format)
}

func TestExtract_PDF(t *testing.T) {
	body, err := os.ReadFile(filepath.Join("testdata", "two-pages.pdf"))
	require.NoError(t, err)
	srv := serve(t, body)

	doc, err := newTestExtractor(t).Extract(context.Background(), srv.URL+"/policy.pdf")
	require.NoError(t, err)
	assert.Equal(t, models.FormatPDF, doc.Format)

	first := strings.Index(doc.Text, "First page mentions the grace period.")
	second := strings.Index(doc.Text, "Second page lists the exclusions.")
	require.GreaterOrEqual(t, first, 0)
	require.Greater(t, second, first)
	assert.Contains(t, doc.Text[first:second], "\n")
	assert.Equal(t, "First page mentions the grace period.\n\nSecond page lists the exclusions.", strings.TrimSpace(doc.Text))
}

func TestExtract_InvalidDOCX(t *testing.T) {
	srv := serve(t, []byte("PK not really a zip"))

	_, err := newTestExtractor(t).Extract(context.Background(), srv.URL+"/broken.docx")

	var parseErr *ParseError
	assert.ErrorAs(t, err, &parseErr)
}

func buildDOCX(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

const sampleDocumentXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"
            xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">
  <w:body>
    <w:p><w:r><w:t>Grace period is thirty days.</w:t></w:r></w:p>
    <w:p>
      <w:r><w:t xml:space="preserve">See </w:t></w:r>
      <w:hyperlink r:id="rId5"><w:r><w:t>the schedule</w:t></w:r></w:hyperlink>
      <w:r><w:tab/><w:t>below.</w:t></w:r>
    </w:p>
    <w:p/>
    <w:p><w:r><w:t>Line one</w:t><w:br/><w:t>Line two</w:t></w:r></w:p>
  </w:body>
</w:document>`

func TestExtract_DOCX(t *testing.T) {
	srv := serve(t, buildDOCX(t, sampleDocumentXML))

	doc, err := newTestExtractor(t).Extract(context.Background(), srv.URL+"/policy.docx?sig=1")
	require.NoError(t, err)

	assert.Equal(t, models.FormatDOCX, doc.Format)
	assert.Equal(t, "Grace period is thirty days.\nSee the schedule\tbelow.\n\nLine one\nLine two", doc.Text)
}

func TestExtract_RemovesTempFile(t *testing.T) {
	dir := t.TempDir()
	srv := serve(t, buildDOCX(t, sampleDocumentXML))

	e := NewWithConfig(ExtractorConfig{TempDir: dir})
	_, err := e.Extract(context.Background(), srv.URL+"/policy.docx")
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExtract_EMLPlain(t *testing.T) {
	msg := "From: Claims Desk <claims@example.com>\r\n" +
		"To: member@example.com\r\n" +
		"Subject: =?UTF-8?Q?Claim_update?=\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"Your claim has been approved.\r\n"
	srv := serve(t, []byte(msg))

	doc, err := newTestExtractor(t).Extract(context.Background(), srv.URL+"/update.eml")
	require.NoError(t, err)

	assert.Equal(t, models.FormatEML, doc.Format)
	assert.Contains(t, doc.Text, "From: Claims Desk <claims@example.com>")
	assert.Contains(t, doc.Text, "Subject: Claim update")
	assert.Contains(t, doc.Text, "Your claim has been approved.")
}

func TestExtract_EMLMultipartPrefersPlain(t *testing.T) {
	msg := "Subject: Renewal\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/alternative; boundary=XYZ\r\n" +
		"\r\n" +
		"--XYZ\r\n" +
		"Content-Type: text/html\r\n" +
		"\r\n" +
		"<p>HTML version</p>\r\n" +
		"--XYZ\r\n" +
		"Content-Type: text/plain\r\n" +
		"Content-Transfer-Encoding: base64\r\n" +
		"\r\n" +
		"UGxhaW4g\r\n" +
		"dmVyc2lvbg==\r\n" +
		"--XYZ--\r\n"
	srv := serve(t, []byte(msg))

	doc, err := newTestExtractor(t).Extract(context.Background(), srv.URL+"/renewal.eml")
	require.NoError(t, err)

	assert.Contains(t, doc.Text, "Plain version")
	assert.NotContains(t, doc.Text, "HTML version")
}

func TestExtract_EMLHTMLBody(t *testing.T) {
	msg := "Subject: Notice\r\n" +
		"Content-Type: text/html\r\n" +
		"\r\n" +
		"<html><head><style>p{}</style></head><body><p>First block</p><div>Second <b>block</b></div>" +
		"<script>alert(1)</script></body></html>\r\n"
	srv := serve(t, []byte(msg))

	doc, err := newTestExtractor(t).Extract(context.Background(), srv.URL+"/notice.eml")
	require.NoError(t, err)

	assert.Equal(t, "Subject: Notice\n\nFirst block\nSecond block", doc.Text)
}

func TestExtract_EMLFallsBackToHTML(t *testing.T) {
	srv := serve(t, []byte("<html><body><h1>Title</h1><p>Body text</p></body></html>"))

	doc, err := newTestExtractor(t).Extract(context.Background(), srv.URL+"/page.eml")
	require.NoError(t, err)
	assert.Equal(t, "Title\nBody text", doc.Text)
}

func TestFetchError_Timeout(t *testing.T) {
	assert.True(t, (&FetchError{Err: context.DeadlineExceeded}).Timeout())
	assert.False(t, (&FetchError{Err: errors.New("connection refused")}).Timeout())
}

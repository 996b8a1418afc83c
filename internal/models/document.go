package models

// Format is the document format detected from a URL's path extension.
type Format string

const (
	FormatPDF         Format = "pdf"
	FormatDOCX        Format = "docx"
	FormatEML         Format = "eml"
	FormatUnsupported Format = "unsupported"
)

// Document is a fetched remote file reduced to plain text.
type Document struct {
	URL    string
	Format Format
	Text   string
}

// Chunk is an overlapping word window of a document's text.
type Chunk struct {
	Position int
	Content  string
}

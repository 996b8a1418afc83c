package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/xhad/docqa/pkg/extractor"
	"github.com/xhad/docqa/pkg/index"
	"github.com/xhad/docqa/pkg/processor"
	"github.com/xhad/docqa/pkg/rag"
	"github.com/xhad/docqa/pkg/reasoner"
)

const (
	CodeInvalidRequest     = "invalid_request"
	CodeUnsupportedFormat  = "unsupported_format"
	CodeFetchFailed        = "fetch_failed"
	CodeExtractionFailed   = "extraction_failed"
	CodeInvalidChunkConfig = "invalid_chunk_config"
	CodeEmbeddingFailed    = "embedding_failed"
	CodeReasoningFailed    = "reasoning_failed"
	CodeTimeout            = "timeout"
	CodeInternal           = "internal_error"
)

// ErrorBody is the JSON error payload. Answers carries the answers of the
// batches that succeeded when reasoning failed part way.
type ErrorBody struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Answers []string `json:"answers,omitempty"`
	Failed  []int    `json:"failed,omitempty"`
}

func errorResponse(err error, resp *rag.Response) (int, ErrorBody) {
	body := ErrorBody{Message: err.Error()}

	var (
		batchErr *rag.BatchError
		fetchErr *extractor.FetchError
		parseErr *extractor.ParseError
		embedErr *index.EmbeddingError
	)
	switch {
	case errors.As(err, &batchErr):
		body.Code = CodeReasoningFailed
		body.Failed = batchErr.Failed
		if resp != nil {
			body.Answers = resp.Answers
		}
		return http.StatusBadGateway, body
	case errors.Is(err, rag.ErrInvalidRequest):
		body.Code = CodeInvalidRequest
		return http.StatusBadRequest, body
	case errors.Is(err, extractor.ErrUnsupportedFormat):
		body.Code = CodeUnsupportedFormat
		return http.StatusUnsupportedMediaType, body
	case errors.As(err, &fetchErr):
		if fetchErr.Timeout() {
			body.Code = CodeTimeout
			return http.StatusGatewayTimeout, body
		}
		body.Code = CodeFetchFailed
		return http.StatusBadGateway, body
	case errors.As(err, &parseErr):
		body.Code = CodeExtractionFailed
		return http.StatusUnprocessableEntity, body
	case errors.Is(err, processor.ErrInvalidChunkConfig):
		body.Code = CodeInvalidChunkConfig
		return http.StatusInternalServerError, body
	case errors.Is(err, context.DeadlineExceeded):
		body.Code = CodeTimeout
		return http.StatusGatewayTimeout, body
	case errors.As(err, &embedErr):
		body.Code = CodeEmbeddingFailed
		return http.StatusBadGateway, body
	case errors.Is(err, reasoner.ErrReasoningService):
		body.Code = CodeReasoningFailed
		return http.StatusBadGateway, body
	default:
		body.Code = CodeInternal
		return http.StatusInternalServerError, body
	}
}

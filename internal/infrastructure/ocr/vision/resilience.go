package vision

import (
	"errors"

	"google.golang.org/api/googleapi"

	"github.com/dcmshi/expense-tracker/internal/infrastructure/resilience"
)

// google.rpc.Code values worth another attempt.
const (
	rpcDeadlineExceeded  = 4
	rpcResourceExhausted = 8
	rpcInternal          = 13
	rpcUnavailable       = 14
)

func classifyVisionError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, ErrNoText) || errors.Is(err, ErrMissingAPIKey) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return resilience.ClassifyRemoteError(&resilience.HTTPStatusError{
			Service:    "vision",
			Operation:  "annotate",
			StatusCode: apiErr.Code,
			Body:       apiErr.Message,
		})
	}

	var annotateErr *annotateError
	if errors.As(err, &annotateErr) {
		switch annotateErr.Code {
		case rpcDeadlineExceeded, rpcResourceExhausted, rpcInternal, rpcUnavailable:
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		default:
			return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
		}
	}

	return resilience.ClassifyRemoteError(err)
}

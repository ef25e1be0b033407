package ollama

import (
	"errors"
	"net/http"

	"github.com/dcmshi/expense-tracker/internal/infrastructure/resilience"
)

// classifyOllamaError treats a missing model as permanent: retrying a 404
// will not pull it.
func classifyOllamaError(err error) resilience.ErrorClassification {
	var statusErr *resilience.HTTPStatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	return resilience.ClassifyRemoteError(err)
}

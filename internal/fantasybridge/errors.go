package fantasybridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"charm.land/fantasy"

	"github.com/dotcommander/threadline/internal/errs"
)

// classify turns a provider failure into a model error with a user-facing
// reason. Cancellation passes through untouched.
func (c *Client) classify(model string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var providerErr *fantasy.ProviderError
	if errors.As(err, &providerErr) {
		return errs.New(errs.KindModel, err, reasonForProviderError(providerErr, c.config.API, model))
	}
	return errs.New(errs.KindModel, err, fmt.Sprintf("There was a problem with the %s API request.", c.config.API))
}

func reasonForProviderError(err *fantasy.ProviderError, api, model string) string {
	switch err.StatusCode {
	case http.StatusNotFound:
		return fmt.Sprintf("Missing model '%s' for API '%s'.", model, api)
	case http.StatusBadRequest:
		if isContextLengthExceeded(err) {
			return "Maximum prompt size exceeded."
		}
	}

	if reason := fantasy.ErrorTitleForStatusCode(err.StatusCode); reason != "" {
		return reason
	}
	if err.IsRetryable() {
		return fmt.Sprintf("%s API server error.", api)
	}
	return fmt.Sprintf("%s API request error.", api)
}

func isContextLengthExceeded(err *fantasy.ProviderError) bool {
	return strings.Contains(strings.ToLower(err.Message), "context_length_exceeded") ||
		strings.Contains(strings.ToLower(string(err.ResponseBody)), "context_length_exceeded")
}

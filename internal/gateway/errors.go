package gateway

import (
	"errors"
	"strings"
)

var (
	ErrNoCredentials        = errors.New("no api credentials configured")
	ErrCredentialsExhausted = errors.New("all api credentials exhausted")
	ErrEmptyResponse        = errors.New("model returned an empty response")
)

// QuotaError marks a provider failure caused by a rate limit or spent quota.
type QuotaError struct {
	Err error
}

func (e *QuotaError) Error() string {
	return "quota exceeded: " + e.Err.Error()
}

func (e *QuotaError) Unwrap() error {
	return e.Err
}

func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	var quotaErr *QuotaError
	if errors.As(err, &quotaErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "RESOURCE_EXHAUSTED") || strings.Contains(msg, "insufficient_quota")
}

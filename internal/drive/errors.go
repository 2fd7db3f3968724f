package drive

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

// ErrorKind classifies a provider failure for callers deciding whether a job
// is worth attempting again.
type ErrorKind string

const (
	KindInvalidCredentials ErrorKind = "invalid_credentials"
	KindPermissionDenied   ErrorKind = "permission_denied"
	KindQuotaExceeded      ErrorKind = "quota_exceeded"
	KindRateLimited        ErrorKind = "rate_limited"
	KindNotFound           ErrorKind = "not_found"
	KindNetwork            ErrorKind = "network"
	KindTimeout            ErrorKind = "timeout"
	KindUnknown            ErrorKind = "unknown"
)

// Retryable reports whether a later attempt may succeed without operator action.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindQuotaExceeded, KindRateLimited, KindNetwork, KindTimeout:
		return true
	case KindInvalidCredentials, KindPermissionDenied, KindNotFound, KindUnknown:
		return false
	}
	return false
}

// Permanent reports whether the provider config needs reconfiguration
// before any further call can succeed.
func (k ErrorKind) Permanent() bool {
	switch k {
	case KindInvalidCredentials, KindPermissionDenied:
		return true
	case KindQuotaExceeded, KindRateLimited, KindNotFound, KindNetwork, KindTimeout, KindUnknown:
		return false
	}
	return false
}

// Error is returned by every Client operation.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("drive %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("drive %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(op string, kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the classification of err. Errors that did not come from
// the adapter are classified on the fly.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return Classify(err)
}

// wrap classifies err and attaches the operation name.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	return &Error{Kind: Classify(err), Op: op, Err: err}
}

// Classify maps a raw client error onto an ErrorKind.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return classifyAPIError(apiErr)
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return KindInvalidCredentials
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}
	if errors.Is(err, context.Canceled) {
		return KindNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "invalid_grant"), strings.Contains(msg, "token expired"):
		return KindInvalidCredentials
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "no such host"), strings.Contains(msg, "eof"):
		return KindNetwork
	}
	return KindUnknown
}

func classifyAPIError(apiErr *googleapi.Error) ErrorKind {
	reasons := make([]string, 0, len(apiErr.Errors))
	for _, item := range apiErr.Errors {
		reasons = append(reasons, item.Reason)
	}

	switch apiErr.Code {
	case http.StatusUnauthorized:
		return KindInvalidCredentials
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusForbidden:
		for _, reason := range reasons {
			switch reason {
			case "rateLimitExceeded", "userRateLimitExceeded", "sharingRateLimitExceeded":
				return KindRateLimited
			case "quotaExceeded", "dailyLimitExceeded", "storageQuotaExceeded", "teamDriveFileLimitExceeded":
				return KindQuotaExceeded
			case "authError", "invalidCredentials":
				return KindInvalidCredentials
			}
		}
		return KindPermissionDenied
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return KindTimeout
	}
	if apiErr.Code >= 500 {
		return KindNetwork
	}
	return KindUnknown
}

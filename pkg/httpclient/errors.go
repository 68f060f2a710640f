package httpclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// downstreamBody covers the error shapes the storefront API answers with:
// {"error":{"code","message"}}, {"message":"..."} and {"error":"..."}.
type downstreamBody struct {
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
}

type downstreamError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ExtractMessage returns the best human-readable message found in an error
// body, or fallback when the body carries none.
func ExtractMessage(body []byte, fallback string) string {
	_, msg := extract(body)
	if msg == "" {
		return fallback
	}
	return msg
}

func extract(body []byte) (code, message string) {
	var b downstreamBody
	if len(body) == 0 || json.Unmarshal(body, &b) != nil {
		return "", ""
	}

	if len(b.Error) > 0 {
		var nested downstreamError
		if json.Unmarshal(b.Error, &nested) == nil && nested.Message != "" {
			return nested.Code, strings.TrimSpace(nested.Message)
		}
		var plain string
		if json.Unmarshal(b.Error, &plain) == nil && strings.TrimSpace(plain) != "" {
			return "", strings.TrimSpace(plain)
		}
	}
	return "", strings.TrimSpace(b.Message)
}

// ParseResponseError reads the body of a non-2xx HTTP response and translates
// it into an AppError. The message is taken from the body when it carries one,
// otherwise fallback is used.
//
// The response body is fully consumed and closed.
func ParseResponseError(resp *http.Response, fallback string) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB limit
	if err != nil {
		return &apperrors.AppError{
			Code:    "REMOTE_REJECTED",
			Message: fallback,
			Status:  resp.StatusCode,
			Err:     fmt.Errorf("%w: read body: %v", apperrors.ErrRemoteRejected, err),
		}
	}
	return mapDownstreamError(resp.StatusCode, bodyBytes, fallback)
}

// FromError converts a transport error returned by a Doer into an AppError.
// 5xx answers surfaced as *ServerError keep their message; anything else
// (network failure, open breaker) becomes a service-unavailable error carrying
// fallback.
func FromError(err error, fallback string) error {
	var se *ServerError
	if errors.As(err, &se) {
		return mapDownstreamError(se.StatusCode, se.Body, fallback)
	}
	unavailable := apperrors.ServiceUnavailable(fallback)
	unavailable.Err = fmt.Errorf("%w: %v", apperrors.ErrServiceUnavail, err)
	return unavailable
}

// mapDownstreamError translates an upstream status and body into an AppError
// that keeps the upstream status.
func mapDownstreamError(status int, body []byte, fallback string) error {
	code, msg := extract(body)
	if msg == "" {
		msg = fallback
	}

	switch {
	case status == http.StatusUnauthorized:
		return apperrors.AuthRequired(msg)
	case status == http.StatusNotFound:
		e := apperrors.RemoteRejected(status, msg)
		e.Err = fmt.Errorf("%w: %w", apperrors.ErrRemoteRejected, apperrors.ErrNotFound)
		return e
	default:
		e := apperrors.RemoteRejected(status, msg)
		if code != "" {
			e.Code = code
		}
		return e
	}
}

// IsClientError returns true if the HTTP status code is a 4xx client error.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}

// IsSuccess returns true for 2xx status codes.
func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}

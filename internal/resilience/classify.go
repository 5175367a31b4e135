package resilience

import (
	"errors"
	"strings"
	"syscall"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// transientHTTPStatus lists HTTP status codes worth retrying.
var transientHTTPStatus = map[int]bool{
	408: true,
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// transientGRPCCodes lists gRPC status codes worth retrying.
var transientGRPCCodes = map[codes.Code]bool{
	codes.DeadlineExceeded:  true,
	codes.ResourceExhausted: true,
	codes.Unavailable:       true,
	codes.Internal:          true,
}

// transientSubstrings catches providers that wrap transient failures into
// opaque error strings. Matched case-insensitively.
var transientSubstrings = []string{
	"timeout",
	"deadline",
	"unavailable",
	"resource exhausted",
	"rate limit",
	"too many requests",
	"connection reset",
	"connection refused",
}

// IsTransient reports whether err represents a failure that is likely to
// succeed on retry. Everything not positively identified as transient is
// treated as permanent, so auth and invalid-argument failures never burn
// retry budget.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if s, ok := status.FromError(err); ok && s.Code() != codes.OK && s.Code() != codes.Unknown {
		return transientGRPCCodes[s.Code()]
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return transientHTTPStatus[gerr.Code]
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, sub := range transientSubstrings {
		if strings.Contains(msg, sub) {
			return true
		}
	}
	return false
}

// IsQuotaExhausted reports whether err indicates the provider's quota or
// rate limit was hit. Quota failures are transient for a single call but a
// signal to back off harder at the stream level.
func IsQuotaExhausted(err error) bool {
	if err == nil {
		return false
	}
	if s, ok := status.FromError(err); ok && s.Code() == codes.ResourceExhausted {
		return true
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == 429 {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "quota") || strings.Contains(msg, "rate limit")
}

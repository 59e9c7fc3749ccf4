package pandora

import (
	"errors"
	"fmt"

	"github.com/pandora-cli/pandora/internal/transport"
)

// Server fault codes from the JSON API.
const (
	CodeInternal               = 0
	CodeMaintenanceMode        = 1
	CodeMissingMethod          = 2
	CodeMissingAuthToken       = 3
	CodeMissingPartnerID       = 4
	CodeMissingUserID          = 5
	CodeSecureRequired         = 6
	CodeCertificateRequired    = 7
	CodeParameterTypeMismatch  = 8
	CodeParameterMissing       = 9
	CodeParameterValueInvalid  = 10
	CodeAPIVersionNotSupported = 11
	CodeInsufficientConn       = 13
	CodeInvalidAuthToken       = 1001
	CodeInvalidLogin           = 1002
	CodeListenerNotAuthorized  = 1003
	CodePlaylistExceeded       = 1039
)

// RPCError is a fault reported by the server in a "fail" envelope.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// SubscriberTypeMismatchError reports a user login attempted with the
// wrong partner tier. CorrectTier carries the tier to retry with.
type SubscriberTypeMismatchError struct {
	CorrectTier Tier
}

func (e *SubscriberTypeMismatchError) Error() string {
	return fmt.Sprintf("account requires %s partner credentials", e.CorrectTier)
}

// RateLimitError rejects a playlist fetch repeated within the rate-limit
// window for the same station token.
type RateLimitError struct {
	StationToken string
	RetryAfterMs int64
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("playlist for station %s requested again within the rate-limit window (retry in %dms)", e.StationToken, e.RetryAfterMs)
}

var (
	// ErrNoPartnerSession is returned for calls that need a partner login first.
	ErrNoPartnerSession = errors.New("partner login required")
	// ErrNotAuthorized is returned for calls that need a user login first.
	ErrNotAuthorized = errors.New("user login required")
	// ErrProtocolViolation marks a response envelope that is neither "ok" nor "fail".
	ErrProtocolViolation = errors.New("malformed response envelope")
)

// ErrorClass buckets failures for retry decisions.
type ErrorClass int

const (
	// ClassUnknown covers anything unclassified; retryable a bounded
	// number of times before giving up.
	ClassUnknown ErrorClass = iota
	// ClassUnsupportedAPI is fatal; the client speaks an API version the
	// server no longer accepts.
	ClassUnsupportedAPI
	// ClassInvalidAuthToken means the partner or user token expired;
	// recoverable by re-running partner login.
	ClassInvalidAuthToken
	// ClassInvalidCredentials is fatal; the listener's username or
	// password is wrong.
	ClassInvalidCredentials
	// ClassRateLimited means the playlist rate limiter rejected the call.
	ClassRateLimited
	// ClassRemoteServer covers maintenance windows and 5xx responses;
	// retryable after a delay.
	ClassRemoteServer
	// ClassNetwork covers transport-level connectivity failures.
	ClassNetwork
)

func (c ErrorClass) String() string {
	switch c {
	case ClassUnsupportedAPI:
		return "unsupported-api"
	case ClassInvalidAuthToken:
		return "invalid-auth-token"
	case ClassInvalidCredentials:
		return "invalid-credentials"
	case ClassRateLimited:
		return "rate-limited"
	case ClassRemoteServer:
		return "remote-server"
	case ClassNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// Classify maps an error from any client operation into an ErrorClass.
func Classify(err error) ErrorClass {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		switch {
		case rpcErr.Code >= CodeMissingMethod && rpcErr.Code <= CodeAPIVersionNotSupported:
			return ClassUnsupportedAPI
		case rpcErr.Code == CodeInternal || rpcErr.Code == CodeMaintenanceMode:
			return ClassRemoteServer
		case rpcErr.Code == CodeInvalidAuthToken:
			return ClassInvalidAuthToken
		case rpcErr.Code == CodeInvalidLogin || rpcErr.Code == CodeListenerNotAuthorized:
			return ClassInvalidCredentials
		case rpcErr.Code == CodePlaylistExceeded:
			return ClassRateLimited
		default:
			return ClassUnknown
		}
	}

	var rateErr *RateLimitError
	if errors.As(err, &rateErr) {
		return ClassRateLimited
	}

	var statusErr *transport.StatusError
	if errors.As(err, &statusErr) {
		if statusErr.Code >= 500 {
			return ClassRemoteServer
		}
		return ClassNetwork
	}

	return ClassUnknown
}

// Package ecode defines standardized error codes for API responses.
//
// Error codes follow a standardized numbering scheme:
//   - 0: Success (OK)
//   - -100 to -199: Authentication/authorization errors
//   - -400 to -499: Request and business errors
//   - -500+: Server errors
package ecode

import "net/http"

const (
	OK = 0

	NoLogin      = -101
	Unauthorized = -102
	TokenExpired = -103

	RequestErr       = -400
	ParamErr         = -401
	AccessDenied     = -403
	NothingFound     = -404
	MethodNotAllowed = -405
	Conflict         = -409

	ServerErr          = -500
	ServiceUnavailable = -503
	Deadline           = -504
)

var messages = map[int]string{
	OK:                 "success",
	NoLogin:            "account not logged in",
	Unauthorized:       "unauthorized",
	TokenExpired:       "token expired",
	RequestErr:         "invalid request",
	ParamErr:           "invalid parameters",
	AccessDenied:       "access denied",
	NothingFound:       "resource not found",
	MethodNotAllowed:   "method not allowed",
	Conflict:           "resource conflict",
	ServerErr:          "internal server error",
	ServiceUnavailable: "service unavailable",
	Deadline:           "deadline exceeded",
}

// Register registers a custom error code with its message.
// Application-specific codes should live in the -1000+ range.
func Register(code int, message string) {
	messages[code] = message
}

// Text returns the human-readable message for a code.
func Text(code int) string {
	if msg, ok := messages[code]; ok {
		return msg
	}
	return messages[ServerErr]
}

// ToHTTPStatus maps an error code to an HTTP status code.
func ToHTTPStatus(code int) int {
	switch code {
	case OK:
		return http.StatusOK
	case NoLogin, Unauthorized, TokenExpired:
		return http.StatusUnauthorized
	case AccessDenied:
		return http.StatusForbidden
	case NothingFound:
		return http.StatusNotFound
	case MethodNotAllowed:
		return http.StatusMethodNotAllowed
	case Conflict:
		return http.StatusConflict
	case RequestErr, ParamErr:
		return http.StatusBadRequest
	case ServiceUnavailable:
		return http.StatusServiceUnavailable
	case Deadline:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

package core

// error_messages.go maps technical errors to user-facing messages with a code
// support staff can look up.
//
//	CFG001 - Source not configured: the spreadsheet URL is missing
//	SRC001 - Source timeout: the spreadsheet did not answer in time
//	SRC002 - Source error: the spreadsheet answered with a non-success status
//	SRC003 - Source unreachable: network failure talking to the spreadsheet
//	REQ001 - Request cancelled
//	REQ002 - Invalid request parameter
//	AUTH001 - Missing or invalid API key
//	RATE001 - Too many requests
//	RATE002 - Too many concurrent CSV downloads
//	ERR000 - Unknown error
//
// Typed errors are matched first with errors.Is / errors.As. Anything else
// falls through to a case-insensitive substring table where the first
// matching pattern wins.

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var (
	msgNotConfigured = UserMessage{
		Message: "The materials source is not configured",
		Action:  "Set SHEET_URL to the published CSV address of the spreadsheet",
		Code:    "CFG001",
	}
	msgSourceTimeout = UserMessage{
		Message: "The materials source took too long to respond",
		Action:  "Please try again in a few moments",
		Code:    "SRC001",
	}
	msgSourceStatus = UserMessage{
		Message: "The materials source returned an error",
		Action:  "Check that the spreadsheet is still published as CSV",
		Code:    "SRC002",
	}
	msgSourceNetwork = UserMessage{
		Message: "Unable to reach the materials source",
		Action:  "Check your connection and try again",
		Code:    "SRC003",
	}
	msgCancelled = UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "REQ001",
	}
	msgAuth = UserMessage{
		Message: "Missing or invalid API key",
		Action:  "Provide a valid X-API-Key header",
		Code:    "AUTH001",
	}
)

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns catches errors that arrive without their type, for example
// after crossing a process boundary as text.
var errorPatterns = []errorPattern{
	{pattern: "sheet_url", msg: msgNotConfigured},
	{pattern: "not configured", msg: msgNotConfigured},
	{pattern: "context deadline exceeded", msg: msgSourceTimeout},
	{pattern: "timeout", msg: msgSourceTimeout},
	{pattern: "upstream status", msg: msgSourceStatus},
	{pattern: "connection refused", msg: msgSourceNetwork},
	{pattern: "no such host", msg: msgSourceNetwork},
	{pattern: "connection reset", msg: msgSourceNetwork},
	{pattern: "context canceled", msg: msgCancelled},
	{
		pattern: "invalid parameter",
		msg: UserMessage{
			Message: "A request parameter is invalid",
			Action:  "Check the query string and try again",
			Code:    "REQ002",
		},
	},
	{pattern: "api key", msg: msgAuth},
	{
		pattern: "too many concurrent",
		msg: UserMessage{
			Message: "The server is busy downloading the spreadsheet",
			Action:  "Please retry in a few seconds",
			Code:    "RATE002",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Returns an empty UserMessage for a nil error.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	if errors.Is(err, ErrSourceNotConfigured) {
		return msgNotConfigured
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		switch {
		case fe.Timeout():
			return msgSourceTimeout
		case fe.StatusCode != 0:
			return msgSourceStatus
		default:
			return msgSourceNetwork
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return msgSourceTimeout
	}
	if errors.Is(err, context.Canceled) {
		return msgCancelled
	}
	if errors.Is(err, ErrMissingAPIKey) || errors.Is(err, ErrInvalidAPIKey) {
		return msgAuth
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

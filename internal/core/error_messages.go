package core

// error_messages.go defines user-friendly error messages with codes for
// support reference. When users encounter errors they can quote the code for
// faster diagnosis.
//
// Error codes are grouped by category:
//
//	REG001 - Invalid region: the requested region code is not in the catalog
//	FMT001 - Unsupported extension: no reader registered for the file type
//	FMT002 - Missing fields: the file lacks required metadata columns
//	FMT003 - Unsupported shape: the JSON document is neither records nor
//	         a compact dimension/value dataset
//	FMT004 - Cannot reshape: the table has neither the combined metadata
//	         column nor the normalized column set
//	ING001 - System busy: too many concurrent ingests
//	ING002 - Cancelled: the ingest was cancelled
//	ING003 - Timeout: the ingest exceeded its deadline
//	ING004 - Not found: the ingest ID is unknown or expired
//	ING005 - File too large: the upload exceeds the size limit
//	DB001  - Duplicate key
//	DB002  - Foreign key: referenced ingest run does not exist
//	DB003  - Connection refused
//	DB004  - Connection reset
//	ERR000 - Fallback when no pattern matches; check application logs for
//	         the original technical error
//
// Patterns are matched case-insensitively with strings.Contains. The first
// match wins, so specific patterns come before general ones.

import (
	"errors"
	"fmt"
	"strings"

	"github.com/eurolife/lifexp/internal/region"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Region errors.
	{
		pattern: "invalid region",
		msg: UserMessage{
			Message: "The requested region code is not recognised",
			Action:  "Use a two-letter country code from the catalog, e.g. PT or FR",
			Code:    "REG001",
		},
	},

	// Format errors.
	{
		pattern: "unsupported extension",
		msg: UserMessage{
			Message: "No reader is available for this file type",
			Action:  "Upload a .tsv, .csv, or .json export",
			Code:    "FMT001",
		},
	},
	{
		pattern: "missing fields",
		msg: UserMessage{
			Message: "The file is missing required metadata columns",
			Action:  "Check that unit, sex, age, geo, time, and value are all present",
			Code:    "FMT002",
		},
	},
	{
		pattern: "unsupported json shape",
		msg: UserMessage{
			Message: "The JSON document has an unrecognised structure",
			Action:  "Provide a list of records or a compact dimension/value dataset",
			Code:    "FMT003",
		},
	},
	{
		pattern: "cannot reshape",
		msg: UserMessage{
			Message: "The table layout is not recognised",
			Action:  "Check the header row of your export",
			Code:    "FMT004",
		},
	},

	// Ingest errors.
	{
		pattern: "too many concurrent ingests",
		msg: UserMessage{
			Message: "System is busy processing other ingests",
			Action:  "Please wait a moment and try again",
			Code:    "ING001",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "The ingest was cancelled",
			Action:  "Start a new ingest when ready",
			Code:    "ING002",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "The ingest timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "ING003",
		},
	},
	{
		pattern: "ingest not found",
		msg: UserMessage{
			Message: "Ingest not found",
			Action:  "The ingest may have expired. Please start a new one",
			Code:    "ING004",
		},
	},
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum size limit",
			Action:  "Split the file into smaller exports",
			Code:    "ING005",
		},
	},

	// Database errors.
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this ID already exists",
			Action:  "Please try again",
			Code:    "DB001",
		},
	},
	{
		pattern: "foreign key",
		msg: UserMessage{
			Message: "Referenced ingest run does not exist",
			Action:  "Please start a new ingest",
			Code:    "DB002",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to the database",
			Action:  "Please try again in a few moments",
			Code:    "DB003",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB004",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Typed domain errors that carry caller-useful detail are handled first;
// everything else goes through the known error patterns (case-insensitive),
// first match wins, with the ERR000 fallback when nothing matches.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	// Invalid-region responses carry the full valid-code enumeration so the
	// caller can correct the request without consulting the catalog endpoint.
	var invalidRegion *region.InvalidRegionError
	if errors.As(err, &invalidRegion) {
		return UserMessage{
			Message: fmt.Sprintf("The requested region code %q is not recognised", invalidRegion.Input),
			Action:  "Use one of the valid country codes: " + countryCodeList(),
			Code:    "REG001",
		}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// countryCodeList renders the non-aggregate catalog codes as one
// comma-separated line for action hints.
func countryCodeList() string {
	codes := region.ActualCountries()
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = string(c)
	}
	return strings.Join(out, ", ")
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

// IsUserFacing reports whether an error matches a known pattern and is safe
// to show to users as-is (not the generic ERR000 fallback).
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

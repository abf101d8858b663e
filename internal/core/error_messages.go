package core

// error_messages.go maps technical errors to coded messages shown to users.
//
//	DB001    duplicate key               "duplicate key"
//	DB002    unique constraint           "unique constraint", "violates unique"
//	DB003    foreign key                 "foreign key"
//	DB004    connection refused          "connection refused"
//	DB005    connection reset            "connection reset"
//	DB006    timeout                     "timeout"
//	DB007    deadlock                    "deadlock"
//	DB008    not found                   "record not found"
//	VAL001   invalid date                "not a valid date", "invalid date"
//	VAL002   invalid number              "numeric check", "invalid number"
//	VAL003   required field              "is required"
//	VAL006   vocabulary                  "must be one of"
//	FILE001  upload too large            "file too large", "request body too large"
//	FILE002  unreadable CSV              "invalid csv"
//	FILE003  encoding                    "encoding error", "invalid utf-8"
//	FILE004  no file                     "no file provided"
//	FILE005  unsupported format          "unsupported file format"
//	FILE006  unreadable spreadsheet      "invalid spreadsheet"
//	IMP001   import slots exhausted      "too many imports"
//	IMP002   request cancelled           "context canceled"
//	IMP003   request timed out           "context deadline exceeded"
//	IMP004   identifier allocation       "allocate patient id"
//	AUTH001  missing credentials         "missing bearer token"
//	AUTH002  bad credentials             "invalid token"
//	RATE001  throttled                   "rate limit"
//	ERR000   anything else
//
// Matching is case-insensitive substring search and the first hit wins,
// so specific patterns come before general ones. VAL004 and VAL005 are
// reserved; column problems surface as required field failures.

import (
	"fmt"
	"strings"
)

// UserMessage is a user-facing description of an error.
type UserMessage struct {
	Message string // what happened
	Action  string // what to do about it
	Code    string // support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var (
	msgDuplicate = UserMessage{
		Message: "A patient with this ID already exists",
		Action:  "Retry the import; failed rows can be uploaded again",
		Code:    "DB001",
	}
	msgUnique = UserMessage{
		Message: "This value must be unique but already exists",
		Action:  "Check for duplicate entries in your file",
		Code:    "DB002",
	}
	msgForeignKey = UserMessage{
		Message: "Referenced record does not exist",
		Action:  "Make sure the patient exists before adding clinical records",
		Code:    "DB003",
	}
	msgInvalidDate = UserMessage{
		Message: "Invalid date format detected",
		Action:  "Use YYYY-MM-DD, DD/MM/YYYY or an Excel date cell",
		Code:    "VAL001",
	}
	msgInvalidNumber = UserMessage{
		Message: "Invalid number format detected",
		Action:  "Use a plain decimal number",
		Code:    "VAL002",
	}
	msgTooLarge = UserMessage{
		Message: "File exceeds the maximum upload size",
		Action:  "Split the file into smaller files",
		Code:    "FILE001",
	}
	msgEncoding = UserMessage{
		Message: "File contains invalid characters",
		Action:  "Save the file with UTF-8 encoding",
		Code:    "FILE003",
	}
)

var errorPatterns = []errorPattern{
	// Database constraints
	{"duplicate key", msgDuplicate},
	{"unique constraint", msgUnique},
	{"violates unique", msgUnique},
	{"foreign key", msgForeignKey},

	// Database connectivity
	{"connection refused", UserMessage{
		Message: "Unable to connect to database",
		Action:  "Please try again in a few moments",
		Code:    "DB004",
	}},
	{"connection reset", UserMessage{
		Message: "Database connection was interrupted",
		Action:  "Please try again",
		Code:    "DB005",
	}},
	{"timeout", UserMessage{
		Message: "Operation timed out",
		Action:  "Try a smaller file or try again later",
		Code:    "DB006",
	}},
	{"deadlock", UserMessage{
		Message: "Database was busy with conflicting operations",
		Action:  "Please try again",
		Code:    "DB007",
	}},
	{"record not found", UserMessage{
		Message: "The requested record was not found",
		Action:  "Refresh the page; it may have been removed",
		Code:    "DB008",
	}},

	// Validation
	{"not a valid date", msgInvalidDate},
	{"invalid date", msgInvalidDate},
	{"numeric check", msgInvalidNumber},
	{"invalid number", msgInvalidNumber},
	{"is required", UserMessage{
		Message: "Required field is empty",
		Action:  "Make sure first_name, last_name, date_of_birth and gender have values",
		Code:    "VAL003",
	}},
	{"must be one of", UserMessage{
		Message: "Value is not in the allowed list",
		Action:  "Download the import template to see the allowed values",
		Code:    "VAL006",
	}},

	// Files
	{"file too large", msgTooLarge},
	{"request body too large", msgTooLarge},
	{"invalid csv", UserMessage{
		Message: "File is not a valid CSV",
		Action:  "Ensure the file is comma-separated with a header row",
		Code:    "FILE002",
	}},
	{"encoding error", msgEncoding},
	{"invalid utf-8", msgEncoding},
	{"no file provided", UserMessage{
		Message: "No file was selected",
		Action:  "Please select a CSV or Excel file to upload",
		Code:    "FILE004",
	}},
	{"unsupported file format", UserMessage{
		Message: "Unsupported file format. Please use CSV or Excel files.",
		Action:  "Save the file as .csv or .xlsx",
		Code:    "FILE005",
	}},
	{"invalid spreadsheet", UserMessage{
		Message: "File is not a readable Excel workbook",
		Action:  "Re-save the workbook as .xlsx or export it to CSV",
		Code:    "FILE006",
	}},

	// Imports
	{"too many imports", UserMessage{
		Message: "System is busy processing other imports",
		Action:  "Please wait a moment and try again",
		Code:    "IMP001",
	}},
	{"context canceled", UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "IMP002",
	}},
	{"context deadline exceeded", UserMessage{
		Message: "Request timed out",
		Action:  "Try a smaller file or check your connection",
		Code:    "IMP003",
	}},
	{"allocate patient id", UserMessage{
		Message: "Patient identifiers could not be assigned",
		Action:  "Please try again; no patients were created",
		Code:    "IMP004",
	}},

	// Authentication
	{"missing bearer token", UserMessage{
		Message: "You are not signed in",
		Action:  "Sign in and try again",
		Code:    "AUTH001",
	}},
	{"invalid token", UserMessage{
		Message: "Your session is invalid or has expired",
		Action:  "Sign in again",
		Code:    "AUTH002",
	}},

	{"rate limit", UserMessage{
		Message: "Too many requests",
		Action:  "Please wait a moment before trying again",
		Code:    "RATE001",
	}},
}

// defaultMessage (ERR000) is used when nothing matches. The technical
// error is in the logs.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-facing message. A nil error
// maps to the zero UserMessage.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError renders "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matched a known pattern.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err. It returns nil for a nil err.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{Technical: err, User: MapError(err)}
}

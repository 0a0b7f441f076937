// Package errors provides structured error types for point-in-time recovery
// operations, with error codes, categories, and remediation hints.
package errors

import (
	"errors"
	"fmt"
)

// Category classifies errors by the subsystem that raised them.
type Category string

const (
	CategoryConfig      Category = "config"
	CategoryCatalog     Category = "catalog"
	CategoryCloud       Category = "cloud"
	CategoryEnvironment Category = "environment"
	CategoryPipeline    Category = "pipeline"
	CategoryBinlog      Category = "binlog"
	CategoryReplay      Category = "replay"
	CategoryInternal    Category = "internal"
)

// Error codes. Stable identifiers for programmatic handling.
const (
	CodeInvalidTarget      = "INVALID_TARGET"
	CodeNoBackupFound      = "NO_BACKUP_FOUND"
	CodeChainBroken        = "CHAIN_BROKEN"
	CodeCloudUnavailable   = "CLOUD_UNAVAILABLE"
	CodeToolMissing        = "TOOL_MISSING"
	CodePrepareFailed      = "PREPARE_FAILED"
	CodeCopyBackFailed     = "COPY_BACK_FAILED"
	CodeExtractFailed      = "EXTRACT_FAILED"
	CodeBinlogExtractEmpty = "BINLOG_EXTRACT_EMPTY"
	CodeMarkerCorrupt      = "MARKER_CORRUPT"
	CodeServerNotReady     = "SERVER_NOT_READY"
	CodeReplayFailed       = "REPLAY_FAILED"
)

// RestoreError is a structured error carrying a code, category, and
// optional remediation hint.
type RestoreError struct {
	Code        string
	Category    Category
	Message     string
	Remediation string
	Err         error
}

func (e *RestoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *RestoreError) Unwrap() error {
	return e.Err
}

// New creates a RestoreError with the given code and category.
func New(code string, category Category, message string) *RestoreError {
	return &RestoreError{Code: code, Category: category, Message: message}
}

// Wrap creates a RestoreError wrapping an underlying error.
func Wrap(err error, code string, category Category, message string) *RestoreError {
	return &RestoreError{Code: code, Category: category, Message: message, Err: err}
}

// WithRemediation attaches a remediation hint.
func (e *RestoreError) WithRemediation(hint string) *RestoreError {
	e.Remediation = hint
	return e
}

// CodeOf returns the structured code of err, or "" when err carries none.
func CodeOf(err error) string {
	var re *RestoreError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// Is reports whether err carries the given structured code.
func Is(err error, code string) bool {
	return CodeOf(err) == code
}

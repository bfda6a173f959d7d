package errors

import (
	stderrors "errors"
	"fmt"

	"github.com/dustin/go-humanize"
)

// ErrorCode represents a cardforge error code.
type ErrorCode string

const (
	ErrMalformedContainer  ErrorCode = "MALFORMED_CONTAINER"  // 400
	ErrInvalidRequest      ErrorCode = "INVALID_REQUEST"      // 400
	ErrAmbiguousAddressing ErrorCode = "AMBIGUOUS_ADDRESSING" // 400
	ErrNotFound            ErrorCode = "NOT_FOUND"            // 404
	ErrFileNotFound        ErrorCode = "FILE_NOT_FOUND"       // 404
	ErrNameAlreadyExists   ErrorCode = "NAME_ALREADY_EXISTS"  // 409
	ErrSizeLimitExceeded   ErrorCode = "SIZE_LIMIT_EXCEEDED"  // 413
	ErrMissingRequired     ErrorCode = "MISSING_REQUIRED"     // 422
	ErrSpecMismatch        ErrorCode = "SPEC_MISMATCH"        // 422
	ErrChecksumMismatch    ErrorCode = "CHECKSUM_MISMATCH"    // 422
	ErrAssetUnresolved     ErrorCode = "ASSET_UNRESOLVED"     // 424 (non-fatal, validator only)
	ErrCancelled           ErrorCode = "CANCELLED"            // 499
	ErrInternal            ErrorCode = "INTERNAL"             // 500
	ErrRemoteFetchFailed   ErrorCode = "REMOTE_FETCH_FAILED"  // 502 (non-fatal, warnings only)
)

// CardError represents a structured error with code, status, and details.
type CardError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *CardError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewMalformedContainer creates a 400 error for a container that cannot be decoded
// (bad signature, truncated chunk stream, unzip failure).
func NewMalformedContainer(container, msg string) *CardError {
	return &CardError{
		Code:    ErrMalformedContainer,
		Status:  400,
		Message: fmt.Sprintf("malformed %s: %s", container, msg),
		Details: map[string]any{"container": container},
	}
}

// NewMissingRequired creates a 422 error for a required file or field that is absent.
func NewMissingRequired(kind, name string) *CardError {
	return &CardError{
		Code:    ErrMissingRequired,
		Status:  422,
		Message: fmt.Sprintf("missing required %s: %s", kind, name),
		Details: map[string]any{kind: name},
	}
}

// NewSpecMismatch creates a 422 error for a document whose spec tag or shape is wrong.
func NewSpecMismatch(msg string) *CardError {
	return &CardError{
		Code:    ErrSpecMismatch,
		Status:  422,
		Message: msg,
	}
}

// NewSizeLimitExceeded creates a 413 error when a per-file, per-asset or total cap is hit.
// kind is one of "json", "asset", "total".
func NewSizeLimitExceeded(kind, path string, max, actual int64) *CardError {
	msg := fmt.Sprintf("%s size limit exceeded: %s (max %s)", kind,
		humanize.IBytes(uint64(actual)), humanize.IBytes(uint64(max)))
	if path != "" {
		msg = fmt.Sprintf("%s size limit exceeded at %s: %s (max %s)", kind, path,
			humanize.IBytes(uint64(actual)), humanize.IBytes(uint64(max)))
	}
	return &CardError{
		Code:    ErrSizeLimitExceeded,
		Status:  413,
		Message: msg,
		Details: map[string]any{"limit": kind, "path": path, "max": max, "actual": actual},
	}
}

// NewChecksumMismatch creates a 422 error for a PNG chunk whose CRC32 does not match.
func NewChecksumMismatch(chunk string, expected, actual uint32) *CardError {
	return &CardError{
		Code:    ErrChecksumMismatch,
		Status:  422,
		Message: fmt.Sprintf("CRC mismatch in %s chunk: stored %08x, computed %08x", chunk, expected, actual),
		Details: map[string]any{"chunk": chunk, "expected": expected, "actual": actual},
	}
}

// NewAssetUnresolved creates a 424 error describing declared assets with no data.
func NewAssetUnresolved(paths []string) *CardError {
	return &CardError{
		Code:    ErrAssetUnresolved,
		Status:  424,
		Message: fmt.Sprintf("assets declared but not found: %v", paths),
		Details: map[string]any{"missing_assets": paths},
	}
}

// NewRemoteFetchFailed creates a 502 error for a failed remote asset download.
func NewRemoteFetchFailed(url string, err error) *CardError {
	msg := "fetch failed"
	if err != nil {
		msg = err.Error()
	}
	return &CardError{
		Code:    ErrRemoteFetchFailed,
		Status:  502,
		Message: fmt.Sprintf("remote asset %s: %s", url, msg),
		Details: map[string]any{"url": url},
	}
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *CardError {
	return &CardError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for when a library card cannot be found.
func NewNotFound(identifier string) *CardError {
	return &CardError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("card not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewAmbiguousAddressing creates a 400 error for when both ID and name are provided.
func NewAmbiguousAddressing() *CardError {
	return &CardError{
		Code:    ErrAmbiguousAddressing,
		Status:  400,
		Message: "cannot specify both id and name; use one addressing mode",
	}
}

// NewNameAlreadyExists creates a 409 error for library name collisions.
func NewNameAlreadyExists(name string) *CardError {
	return &CardError{
		Code:    ErrNameAlreadyExists,
		Status:  409,
		Message: fmt.Sprintf("card with name %q already exists", name),
		Details: map[string]any{"name": name},
	}
}

// NewFileNotFound creates a 404 error for a file that does not exist on disk.
func NewFileNotFound(path string) *CardError {
	return &CardError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewCancelled creates a 499 error when an operation is cancelled by its context.
func NewCancelled(operation string) *CardError {
	return &CardError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", operation),
		Details: map[string]any{"operation": operation},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *CardError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &CardError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error is (or wraps) a CardError with the given code.
func Is(err error, code ErrorCode) bool {
	var cErr *CardError
	if stderrors.As(err, &cErr) {
		return cErr.Code == code
	}
	return false
}

// As returns the CardError inside err, if any.
func As(err error) (*CardError, bool) {
	var cErr *CardError
	if stderrors.As(err, &cErr) {
		return cErr, true
	}
	return nil, false
}

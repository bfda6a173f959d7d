package ops

import (
	"context"

	"github.com/hpungsan/cardforge/internal/config"
	"github.com/hpungsan/cardforge/internal/errors"
)

// ValidateInput contains parameters for the Validate operation.
type ValidateInput struct {
	Source
}

// ValidateOutput contains the result of the Validate operation. A file that fails to
// parse is reported as invalid with the error code rather than returned as an error.
type ValidateOutput struct {
	Valid         bool           `json:"valid"`
	Format        string         `json:"format,omitempty"`
	Spec          string         `json:"spec,omitempty"`
	ErrorCode     string         `json:"error_code,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	ErrorDetails  map[string]any `json:"error_details,omitempty"`
	MissingAssets []string       `json:"missing_assets,omitempty"`
	Warnings      []string       `json:"warnings,omitempty"`
}

// Validate parses a card file and checks its structure. Caller mistakes such as a bad
// path are still returned as errors.
func Validate(ctx context.Context, cfg *config.Config, input ValidateInput) (*ValidateOutput, error) {
	pc, _, err := parseSource(ctx, cfg, input.Source, nil)
	if err != nil {
		ce, ok := errors.As(err)
		if !ok || !isFormatError(ce.Code) {
			return nil, err
		}
		return &ValidateOutput{
			ErrorCode:    string(ce.Code),
			ErrorMessage: ce.Message,
			ErrorDetails: ce.Details,
		}, nil
	}

	out := &ValidateOutput{
		Valid:    true,
		Format:   string(pc.Format),
		Spec:     pc.Spec,
		Warnings: pc.Warnings,
	}
	if pc.Validation != nil {
		out.Valid = pc.Validation.Valid
		out.MissingAssets = pc.Validation.MissingAssets
		if verr := pc.Validation.Err(); verr != nil {
			ce, _ := errors.As(verr)
			out.ErrorCode = string(ce.Code)
			out.ErrorMessage = ce.Message
		}
	}
	return out, nil
}

// isFormatError reports whether code describes the file rather than the request.
func isFormatError(code errors.ErrorCode) bool {
	switch code {
	case errors.ErrMalformedContainer,
		errors.ErrMissingRequired,
		errors.ErrSpecMismatch,
		errors.ErrSizeLimitExceeded,
		errors.ErrChecksumMismatch:
		return true
	}
	return false
}

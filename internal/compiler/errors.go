package compiler

import (
	"fmt"

	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// Compile error codes for malformed CUE input (E120-E139).
// Descriptor-level problems use the ir validation codes (E101-E119).
const (
	ErrCodeSyntax      = "E120" // CUE evaluation error
	ErrCodeMissing     = "E121" // required field missing
	ErrCodeWrongType   = "E122" // field has the wrong CUE kind
	ErrCodeBadOperator = "E123" // constraint struct without a valid op
	ErrCodeBadValue    = "E124" // value cannot be represented (floats, structs)
	ErrCodeBadAction   = "E125" // action struct is malformed
)

// CompileError is a CUE-level error with its source position.
type CompileError struct {
	Field   string
	Message string
	Code    string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func missing(field string, pos token.Pos, msg string) *CompileError {
	return &CompileError{Field: field, Message: msg, Code: ErrCodeMissing, Pos: pos}
}

func wrongType(field string, pos token.Pos, msg string) *CompileError {
	return &CompileError{Field: field, Message: msg, Code: ErrCodeWrongType, Pos: pos}
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(field string, err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &CompileError{Field: field, Message: err.Error(), Code: ErrCodeSyntax}
	}
	first := errs[0]
	ce := &CompileError{Field: field, Message: first.Error(), Code: ErrCodeSyntax}
	if positions := errors.Positions(first); len(positions) > 0 {
		ce.Pos = positions[0]
	}
	return ce
}

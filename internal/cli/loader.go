package cli

import (
	"errors"
	"fmt"

	"cuelang.org/go/cue/token"

	"github.com/roach88/ruleunit/internal/compiler"
	"github.com/roach88/ruleunit/internal/engine"
)

// Error code constants shared by all CLI commands. Directory and CUE load
// failures reuse the compiler's E002-E007; rule descriptor problems keep
// their ir codes (E101-E125).
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = compiler.ErrCodeScan
	ErrCodeNoFiles     = compiler.ErrCodeNoFiles
	ErrCodeLoadFailed  = compiler.ErrCodeLoad
	ErrCodeNotFound    = compiler.ErrCodeNotFound
	ErrCodeBuildFailed = compiler.ErrCodeBuild
	ErrCodeEmpty       = compiler.ErrCodeEmpty
	ErrCodeWriteFailed = "E008" // File write error
	ErrCodeBadInput    = "E009" // Facts file or argument could not be used
	ErrCodeJournal     = "E010" // Journal open/read/write error
)

// LoadError represents an error that occurred while loading a rules directory.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadRules loads and compiles the CUE rule set in dir. Every returned error
// is a *LoadError. The rule set is nil only when the directory itself could
// not be loaded.
func LoadRules(dir string, mode compiler.Mode) (*compiler.RuleSet, []error) {
	rs, errs := compiler.Load(dir, mode)
	out := make([]error, len(errs))
	for i, err := range errs {
		out[i] = convertCompileError(err)
	}
	return rs, out
}

// LoadKnowledgeBase loads dir fail-fast, rejects invalid descriptors and
// builds the knowledge base. Errors are ExitErrors with ExitCommandError.
func LoadKnowledgeBase(dir string) (*compiler.RuleSet, *engine.KnowledgeBase, error) {
	rs, errs := LoadRules(dir, compiler.FailFast)
	if len(errs) > 0 {
		return nil, nil, WrapExitError(ExitCommandError, "failed to load rules", errs[0])
	}
	if verrs := compiler.Validate(rs); len(verrs) > 0 {
		return nil, nil, WrapExitError(ExitCommandError, "invalid rules", verrs[0])
	}
	kb, err := rs.KnowledgeBase()
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to build knowledge base", err)
	}
	return rs, kb, nil
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		msg := compileErr.Message
		if compileErr.Field != "" && compileErr.Field != "dir" && compileErr.Field != "cue" {
			msg = compileErr.Field + ": " + msg
		}
		return &LoadError{
			Code:    codeOrGeneric(compileErr.Code),
			Message: msg,
			Pos:     compileErr.Pos,
		}
	}
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr
	}
	return &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
}

func codeOrGeneric(code string) string {
	if code == "" {
		return ErrCodeGeneric
	}
	return code
}

// errorCode picks the code reported for err: the LoadError or validation
// code, the engine's runtime code, or E001.
func errorCode(err error) string {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code
	}
	var verr compiler.ValidationError
	if errors.As(err, &verr) {
		return verr.Code
	}
	var rerr *engine.RuntimeError
	if errors.As(err, &rerr) {
		return string(rerr.Code)
	}
	return ErrCodeGeneric
}

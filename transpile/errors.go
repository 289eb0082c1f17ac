package transpile

import (
	"errors"
	"fmt"

	"github.com/eejs2py/eejs2py/scanner"
)

// Structural errors. Every error returned by Translate matches exactly one
// of these through errors.Is.
var (
	ErrUnbalancedDelimiter           = scanner.ErrUnbalanced
	ErrUnsupportedNestingDepth       = errors.New("unsupported nesting depth")
	ErrMalformedLoopHeader           = errors.New("malformed loop header")
	ErrUnresolvedAnonymousAssignment = errors.New("unresolved anonymous assignment")
	ErrReservedIdentifier            = errors.New("reserved identifier")
	ErrUnsupportedConstruct          = errors.New("unsupported construct")
)

// Error describes a fatal translation error: the stage that raised it, the
// approximate line in that stage's input and the offending fragment.
type Error struct {
	Stage    string
	Line     int
	Fragment string
	Err      error
}

func (e *Error) Error() string {
	msg := e.Err.Error()
	var ue *scanner.UnbalancedError
	if errors.As(e.Err, &ue) {
		msg = fmt.Sprintf("no matching %q", closerOf(ue.Open))
		if ue.Stray {
			msg = fmt.Sprintf("unexpected %q", closerOf(ue.Open))
		}
	}
	if e.Stage != "" {
		return fmt.Sprintf("%s: line %d: %s: %s", e.Stage, e.Line, msg, e.Fragment)
	}
	return fmt.Sprintf("line %d: %s: %s", e.Line, msg, e.Fragment)
}

func (e *Error) Unwrap() error { return e.Err }

func closerOf(open byte) byte {
	switch open {
	case '(':
		return ')'
	case '[':
		return ']'
	}
	return '}'
}

// syntaxErr builds an *Error for a line-oriented pass.
func syntaxErr(kind error, line int, fragment string) error {
	return &Error{Line: line, Fragment: fragment, Err: kind}
}

// asError converts a scanner error into an *Error, keeping its position.
func asError(err error, baseLine int) error {
	var ue *scanner.UnbalancedError
	if errors.As(err, &ue) {
		return &Error{Line: baseLine + ue.Line - 1, Fragment: ue.Fragment, Err: ue}
	}
	var te *Error
	if errors.As(err, &te) {
		return err
	}
	return &Error{Line: baseLine, Err: err}
}

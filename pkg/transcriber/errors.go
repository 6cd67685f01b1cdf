package transcriber

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind partitions engine failures by how the orchestrator should
// route them.
type ErrorKind int

const (
	// KindOther fails the current strategy; the next strategy in the
	// chain is tried.
	KindOther ErrorKind = iota

	// KindShape marks tensor shape/dimension rejections, typically from
	// degenerate or too-short input. Recoverable by segment splitting.
	KindShape
)

func (k ErrorKind) String() string {
	if k == KindShape {
		return "shape"
	}
	return "other"
}

// EngineError wraps a raw engine failure with its classified kind.
type EngineError struct {
	Kind ErrorKind
	Err  error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine error (%s): %v", e.Kind, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// IsShapeError reports whether err is an engine failure recoverable by
// segment splitting.
func IsShapeError(err error) bool {
	var engineErr *EngineError
	return errors.As(err, &engineErr) && engineErr.Kind == KindShape
}

// shapeMarkers are the message fragments the underlying model emits when
// it rejects a tensor shape. Matching raw engine text is fragile, so it
// lives only here: callers see ErrorKind, never substrings.
var shapeMarkers = []string{
	"tensor",
	"reshape",
	"dimension",
	"cannot be multiplied",
	"size mismatch",
}

// Classify maps a raw engine failure into an EngineError with a kind.
func Classify(err error) *EngineError {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range shapeMarkers {
		if strings.Contains(msg, marker) {
			return &EngineError{Kind: KindShape, Err: err}
		}
	}
	return &EngineError{Kind: KindOther, Err: err}
}

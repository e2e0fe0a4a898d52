package compose

import "fmt"

type ErrorKind string

const (
	// KindCollision is a type or root field declared by two graphs.
	KindCollision ErrorKind = "collision"
	// KindExtension is a malformed or conflicting extension unit.
	KindExtension ErrorKind = "extension"
	// KindSchema is a sub-graph that cannot be loaded or a merged schema
	// that does not validate.
	KindSchema ErrorKind = "schema"
	// KindReachability is an abstract type without object types or a root
	// field nothing resolves.
	KindReachability ErrorKind = "reachability"
)

// Error is a composition failure. Composition errors are fatal, a gateway
// must not serve requests when Compose fails.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("compose %s: %s: %s", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("compose %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, err error, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// Package coreerr defines the stable error kinds shared across the device
// I/O engine: a small closed set of comparable Kind values a host CLI
// talking to a serial device needs to distinguish and act on.
package coreerr

// Kind is a stable, comparable error identifier. It is a string newtype so
// it is allocation-free and implements error on its own.
type Kind string

func (k Kind) Error() string { return string(k) }

const (
	OK         Kind = "ok"
	Cancelled  Kind = "cancelled"
	Connection Kind = "connection"
	Framing    Kind = "framing"
	Write      Kind = "write"
	Timeout    Kind = "timeout"
	Protocol   Kind = "protocol"
	Config     Kind = "config"
	Validation Kind = "validation"
)

// E wraps a Kind with an operation name, a human message and an optional
// cause. It is the concrete error type returned by every core component.
type E struct {
	K   Kind
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := e.Op
	if s != "" {
		s += ": "
	}
	s += string(e.K)
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *E) Unwrap() error { return e.Err }
func (e *E) Kind() Kind    { return e.K }

// New builds an *E with no cause.
func New(k Kind, op, msg string) *E {
	return &E{K: k, Op: op, Msg: msg}
}

// Wrap builds an *E carrying cause as Err.
func Wrap(k Kind, op, msg string, cause error) *E {
	return &E{K: k, Op: op, Msg: msg, Err: cause}
}

// Of extracts the Kind from an error, defaulting to Protocol for anything
// unrecognised (never OK for a non-nil error).
func Of(err error) Kind {
	if err == nil {
		return OK
	}
	if k, ok := err.(Kind); ok {
		return k
	}
	type coder interface{ Kind() Kind }
	if x, ok := err.(coder); ok {
		return x.Kind()
	}
	return Protocol
}

// Is reports whether err carries the given Kind, walking Unwrap chains.
func Is(err error, k Kind) bool {
	for err != nil {
		if kk, ok := err.(Kind); ok && kk == k {
			return true
		}
		type coder interface{ Kind() Kind }
		if x, ok := err.(coder); ok && x.Kind() == k {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Diag is one per-event diagnostic found while validating a push;
// ValidationErr aggregates them. Path is a path-prefix identifier like
// TYPE(dx,dy)/page-N/element-i/eventName.
type Diag struct {
	Path string
	Msg  string
}

type ValidationErr struct {
	Diags []Diag
}

func (v *ValidationErr) Error() string {
	if len(v.Diags) == 0 {
		return string(Validation)
	}
	s := string(Validation) + ": " + v.Diags[0].Path + ": " + v.Diags[0].Msg
	if len(v.Diags) > 1 {
		s += " (+ more)"
	}
	return s
}

func (v *ValidationErr) Kind() Kind { return Validation }

func (v *ValidationErr) Add(path, msg string) {
	v.Diags = append(v.Diags, Diag{Path: path, Msg: msg})
}

func (v *ValidationErr) HasErrors() bool { return len(v.Diags) > 0 }

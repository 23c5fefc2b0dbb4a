package errcode

// Code is a stable error identifier for simulation faults.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK Code = "ok"

	// Bus / device plane
	DeviceNotFound   Code = "device_not_found"
	RegisterNotFound Code = "register_not_found"
	DuplicateAddress Code = "duplicate_address"
	LengthMismatch   Code = "length_mismatch"
	ShortRead        Code = "short_read"

	// Pin / timer plane
	HandlerFault  Code = "handler_fault"
	InvalidConfig Code = "invalid_config"
	UnknownPin    Code = "unknown_pin"

	Unsupported Code = "unsupported"
	Error       Code = "error" // generic fallback
)

// E keeps context and a cause alongside a Code.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Is lets errors.Is match an E against its bare Code.
func (e *E) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.C
}

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		if c := Of(u.Unwrap()); c != Error {
			return c
		}
	}
	return Error
}

// New builds an E with a code and operation context.
func New(c Code, op, msg string) *E {
	return &E{C: c, Op: op, Msg: msg}
}

// Wrap attaches a code and operation to a cause. Returns nil for a nil cause.
func Wrap(c Code, op string, err error) error {
	if err == nil {
		return nil
	}
	return &E{C: c, Op: op, Err: err}
}

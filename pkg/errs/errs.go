// Package errs defines the error domain for the application. Errors
// carry the operation that produced them and a kind that classifies
// them, so callers can branch on classification without string
// matching and logs can show the call path that built the error.
//
// The design follows the error handling described in
// https://commandcenter.blogspot.com/2017/12/error-handling-in-upspin.html
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Op describes an operation, usually as Type.Method.
type Op string

// Parameter names the request parameter an error relates to.
type Parameter string

// Kind classifies an error.
type Kind uint8

const (
	Other           Kind = iota // unclassified
	Invalid                     // invalid operation for this type of item
	IO                          // external I/O error such as a network failure
	Exist                       // item already exists
	NotExist                    // item does not exist
	Internal                    // internal error or inconsistency
	Database                    // error from the database or query engine
	Validation                  // input failed validation
	InvalidRequest              // request is invalid as stated
	Unauthenticated             // no valid credentials provided
	Unauthorized                // credentials lack a required permission
)

func (k Kind) String() string {
	switch k {
	case Other:
		return "other error"
	case Invalid:
		return "invalid operation"
	case IO:
		return "I/O error"
	case Exist:
		return "item already exists"
	case NotExist:
		return "item does not exist"
	case Internal:
		return "internal error"
	case Database:
		return "database error"
	case Validation:
		return "validation error"
	case InvalidRequest:
		return "invalid request"
	case Unauthenticated:
		return "unauthenticated"
	case Unauthorized:
		return "unauthorized"
	}

	return "unknown error kind"
}

// Error is the type that implements the error interface. An Error
// value may wrap another Error, building a chain of operations.
type Error struct {
	Op    Op
	Kind  Kind
	Param Parameter
	Err   error
}

// Error returns the message of the wrapped error. Operation and kind
// metadata stay out of the message so the user-facing text remains a
// single readable line; use OpStack for the call path.
func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}

	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E builds an error from its arguments. There must be at least one
// argument or E panics. The type of each argument determines its
// meaning: Op, Kind and Parameter annotate the error, a string is
// treated as a message, and an error becomes the wrapped cause.
func E(args ...interface{}) error {
	if len(args) == 0 {
		panic("call to errs.E with no arguments")
	}

	e := &Error{}
	for _, arg := range args {
		switch arg := arg.(type) {
		case Op:
			e.Op = arg
		case Kind:
			e.Kind = arg
		case Parameter:
			e.Param = arg
		case string:
			e.Err = errors.New(arg)
		case *Error:
			e.Err = arg
		case error:
			e.Err = arg
		default:
			e.Err = fmt.Errorf("unknown type %T, value %v in error call", arg, arg)
		}
	}

	if e.Kind == Other {
		// Inherit the classification of the wrapped error.
		var prev *Error
		if errors.As(e.Err, &prev) {
			e.Kind = prev.Kind
		}
	}

	return e
}

// Str returns an error from a plain string, for use as the final
// argument to E when there is no underlying error to wrap.
func Str(text string) error {
	return errors.New(text)
}

// KindIs reports whether any error in the chain is an *Error of the
// given kind.
func KindIs(kind Kind, err error) bool {
	var e *Error
	if errors.As(err, &e) {
		if e.Kind != Other {
			return e.Kind == kind
		}

		return KindIs(kind, e.Err)
	}

	return false
}

// KindOf returns the kind of the outermost classified *Error in the
// chain, or Other if the error carries no classification.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		if e.Kind != Other {
			return e.Kind
		}

		return KindOf(e.Err)
	}

	return Other
}

// OpStack returns the ordered list of operations in the error chain,
// outermost first, as "op1: op2: op3".
func OpStack(err error) string {
	var ops []string

	var e *Error
	for errors.As(err, &e) {
		if e.Op != "" {
			ops = append(ops, string(e.Op))
		}
		err = e.Err
	}

	return strings.Join(ops, ": ")
}

package errdef

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeUnknown    Code = "unknown"
	CodeHTTP       Code = "http"
	CodeFilesystem Code = "filesystem"
	CodeStorage    Code = "storage"
	CodeHistory    Code = "history"
	CodeParse      Code = "parse"
	CodeConfig     Code = "config"
)

type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		if e.Msg != "" {
			return fmt.Sprintf("%s: %v", e.Msg, e.Err)
		}
		return e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func New(code Code, format string, args ...interface{}) error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf walks the chain and returns the first tagged code, or CodeUnknown.
func CodeOf(err error) Code {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Code
	}
	return CodeUnknown
}

// Message returns the outermost message without the wrapped cause.
func Message(err error) string {
	var tagged *Error
	if errors.As(err, &tagged) && tagged.Msg != "" {
		return tagged.Msg
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

package call

import (
	"errors"
	"fmt"

	"github.com/ent0n29/botcall/internal/notice"
)

// ErrorKind classifies controller failures. Every kind surfaces as a notice;
// none of them stop the controller.
type ErrorKind string

const (
	KindConfiguration ErrorKind = "configuration"
	KindConnection    ErrorKind = "connection"
	KindCommand       ErrorKind = "command"
	KindTransport     ErrorKind = "transport"
)

var (
	ErrBlankEndpoint   = errors.New("bot endpoint url is blank")
	ErrBlankCredential = errors.New("api key is blank")
	ErrClosed          = errors.New("call controller closed")
)

const helpURL = "https://bots.daily.co"

// Error is a failure the controller reported to the user.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Message is the human-readable text shown in the notice slot.
func (e *Error) Message() string {
	switch e.Kind {
	case KindConfiguration:
		switch {
		case errors.Is(e.Err, ErrBlankCredential):
			return "Need to fill the API key. For more info visit: " + helpURL
		case errors.Is(e.Err, ErrBlankEndpoint):
			return "Need to fill the bot endpoint URL. For more info visit: " + helpURL
		}
		return "Invalid settings: " + e.Err.Error()
	case KindConnection:
		return "Unable to connect: " + e.Err.Error()
	case KindCommand:
		return fmt.Sprintf("Unable to %s: %v", e.Op, e.Err)
	default:
		return e.Err.Error()
	}
}

func (k ErrorKind) noticeKind() notice.Kind {
	switch k {
	case KindConfiguration:
		return notice.KindConfiguration
	case KindConnection:
		return notice.KindConnection
	case KindCommand:
		return notice.KindCommand
	default:
		return notice.KindTransport
	}
}

// IsKind reports whether err is a controller *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

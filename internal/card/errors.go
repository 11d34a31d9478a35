package card

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrInvalidCard is the kind of every structural invariant violation.
	ErrInvalidCard = errors.New("invalid card")

	// ErrNotFound is the kind returned when a referenced card does not exist.
	ErrNotFound = errors.New("card not found")

	// ErrCyclicAdoption is the kind returned when an adopted-from chain
	// revisits a card.
	ErrCyclicAdoption = errors.New("cyclic adoption")
)

// Error is a structured card error carrying an HTTP style status and a JSON
// pointer to the offending location.
type Error struct {
	Kind    error
	Status  int
	Pointer string
	Detail  string
}

func (e *Error) Error() string {
	if e.Pointer != "" {
		return fmt.Sprintf("%s: %s (at %s)", e.Kind, e.Detail, e.Pointer)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Is matches the error kind so errors.Is(err, ErrInvalidCard) works.
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

// Title is a short human readable summary of the kind.
func (e *Error) Title() string {
	switch e.Kind {
	case ErrNotFound:
		return "Not Found"
	case ErrCyclicAdoption:
		return "Cyclic Adoption"
	default:
		return "Invalid Card"
	}
}

func invalidCard(pointer, format string, args ...any) *Error {
	return &Error{
		Kind:    ErrInvalidCard,
		Status:  http.StatusBadRequest,
		Pointer: pointer,
		Detail:  fmt.Sprintf(format, args...),
	}
}

// NotFound builds the error a fetcher returns for a missing card.
func NotFound(id string) *Error {
	return &Error{
		Kind:   ErrNotFound,
		Status: http.StatusNotFound,
		Detail: fmt.Sprintf("no card with id '%s'", id),
	}
}

func cyclicAdoption(chain []string, id string) *Error {
	return &Error{
		Kind:    ErrCyclicAdoption,
		Status:  http.StatusBadRequest,
		Pointer: "/data/relationships/adopted-from/data",
		Detail:  fmt.Sprintf("the adoption chain %s revisits '%s'", strings.Join(chain, " -> "), id),
	}
}

// IsNotFound reports whether err is, or wraps, a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// StatusOf returns the status carried by err, or 500.
func StatusOf(err error) int {
	var cerr *Error
	if errors.As(err, &cerr) && cerr.Status != 0 {
		return cerr.Status
	}
	return http.StatusInternalServerError
}

// pointer builds a JSON pointer from reference tokens, escaping them per
// RFC 6901.
func pointer(tokens ...any) string {
	var b strings.Builder
	for _, t := range tokens {
		b.WriteByte('/')
		s := fmt.Sprint(t)
		s = strings.ReplaceAll(s, "~", "~0")
		s = strings.ReplaceAll(s, "/", "~1")
		b.WriteString(s)
	}
	return b.String()
}

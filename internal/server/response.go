package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/NullVoxPopuli/cardstack/internal/card"
)

// JSONAPIMediaType is the JSON:API media type.
const JSONAPIMediaType = "application/vnd.api+json"

// ErrorObject is a JSON:API error object.
type ErrorObject struct {
	Status string       `json:"status"`
	Title  string       `json:"title"`
	Detail string       `json:"detail,omitempty"`
	Source *ErrorSource `json:"source,omitempty"`
}

// ErrorSource points at the part of the request document that caused an
// error.
type ErrorSource struct {
	Pointer   string `json:"pointer,omitempty"`
	Parameter string `json:"parameter,omitempty"`
}

// ErrorDocument is a JSON:API error document.
type ErrorDocument struct {
	Errors []ErrorObject `json:"errors"`
}

// RenderDocument writes payload as a JSON:API document.
func RenderDocument(w http.ResponseWriter, status int, payload any) error {
	// Marshal before touching the response to avoid partial writes.
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", JSONAPIMediaType)
	w.WriteHeader(status)
	_, err = w.Write(data)
	return err
}

// RenderError writes err as a JSON:API error document. Card errors carry
// their own status; anything else is a 500 whose detail is not exposed.
func RenderError(w http.ResponseWriter, err error) {
	obj := errorObject(err)
	status, _ := strconv.Atoi(obj.Status)

	w.Header().Set("Content-Type", JSONAPIMediaType)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorDocument{Errors: []ErrorObject{obj}})
}

func errorObject(err error) ErrorObject {
	var cerr *card.Error
	if errors.As(err, &cerr) {
		obj := ErrorObject{
			Status: strconv.Itoa(cerr.Status),
			Title:  cerr.Title(),
			Detail: cerr.Detail,
		}
		if cerr.Pointer != "" {
			obj.Source = &ErrorSource{Pointer: cerr.Pointer}
		}
		return obj
	}

	var herr *httpError
	if errors.As(err, &herr) {
		obj := ErrorObject{
			Status: strconv.Itoa(herr.status),
			Title:  http.StatusText(herr.status),
			Detail: herr.detail,
		}
		if herr.parameter != "" {
			obj.Source = &ErrorSource{Parameter: herr.parameter}
		}
		return obj
	}

	return ErrorObject{
		Status: strconv.Itoa(http.StatusInternalServerError),
		Title:  http.StatusText(http.StatusInternalServerError),
		Detail: "An unexpected error occurred",
	}
}

// httpError is a request level error that is not about a card document.
type httpError struct {
	status    int
	detail    string
	parameter string
}

func (e *httpError) Error() string {
	return e.detail
}

func badRequest(detail, parameter string) error {
	return &httpError{status: http.StatusBadRequest, detail: detail, parameter: parameter}
}

package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/aussiebroadwan/starter/pkg/slogx"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const genericInternalMessage = "An unexpected error occurred."

// InternalErrorBody is the 500 response body.
type InternalErrorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

// Recover turns panics into a 500 response. When expose is false the
// message is replaced with a generic one.
func Recover(expose bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				err, ok := rec.(error)
				if !ok {
					err = fmt.Errorf("%v", rec)
				}
				slogx.FromContext(r.Context()).Error("panic recovered",
					"err", err,
					"stack", string(debug.Stack()),
				)
				InternalError(w, r, err, expose)
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// InternalError logs nothing; it records err on the active span and writes
// the 500 body carrying the request and trace ids.
func InternalError(w http.ResponseWriter, r *http.Request, err error, expose bool) {
	if err == nil {
		err = errors.New("internal error")
	}

	span := trace.SpanFromContext(r.Context())
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	body := InternalErrorBody{
		Error:     "internal_server_error",
		Message:   genericInternalMessage,
		RequestID: slogx.RequestID(r.Context()),
	}
	if expose {
		body.Message = err.Error()
	}
	if body.RequestID == "" {
		body.RequestID = w.Header().Get(slogx.RequestIDHeader)
	}
	if sc := span.SpanContext(); sc.HasTraceID() {
		body.TraceID = sc.TraceID().String()
	}

	WriteJSON(w, http.StatusInternalServerError, body)
}

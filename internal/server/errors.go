package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/iamvkosarev/persona-chat/internal/gateway"
	"github.com/iamvkosarev/persona-chat/internal/miniapp"
	"github.com/iamvkosarev/persona-chat/internal/model"
	"github.com/iamvkosarev/persona-chat/internal/observability"
	"github.com/iamvkosarev/persona-chat/internal/usecase"
	"github.com/iamvkosarev/persona-chat/pkg/local"
)

var errBadRequest = errors.New("bad request")

type errorResponse struct {
	Error string `json:"error"`
}

var errorStatuses = []struct {
	err    error
	status int
}{
	{errBadRequest, http.StatusBadRequest},
	{usecase.ErrEmptyMessage, http.StatusBadRequest},
	{usecase.ErrUploadNotAllowed, http.StatusBadRequest},
	{usecase.ErrNotUserMessage, http.StatusBadRequest},
	{usecase.ErrAttachmentsNotHeld, http.StatusBadRequest},
	{usecase.ErrSamePersona, http.StatusBadRequest},
	{usecase.ErrInvalidPreferences, http.StatusBadRequest},
	{usecase.ErrEmptyTopic, http.StatusBadRequest},
	{miniapp.ErrLocationRequired, http.StatusBadRequest},
	{miniapp.ErrEmptyQuery, http.StatusBadRequest},
	{miniapp.ErrInvalidCourse, http.StatusBadRequest},

	{model.ErrWorkspaceNotFound, http.StatusNotFound},
	{usecase.ErrPersonaNotFound, http.StatusNotFound},
	{usecase.ErrMessageNotFound, http.StatusNotFound},
	{usecase.ErrPlanNotFound, http.StatusNotFound},
	{miniapp.ErrSurahNotFound, http.StatusNotFound},
	{miniapp.ErrAyahNotFound, http.StatusNotFound},
	{miniapp.ErrPlaceNotFound, http.StatusNotFound},
	{miniapp.ErrAppNotFound, http.StatusNotFound},

	{usecase.ErrSessionBusy, http.StatusConflict},
	{usecase.ErrPlanAlreadyExecuted, http.StatusConflict},

	{gateway.ErrCredentialsExhausted, http.StatusTooManyRequests},
	{gateway.ErrNoCredentials, http.StatusServiceUnavailable},
	{miniapp.ErrSearchNotConfigured, http.StatusServiceUnavailable},
	{miniapp.ErrUpstream, http.StatusBadGateway},
	{usecase.ErrStructuredOutput, http.StatusBadGateway},
}

func statusFor(err error) int {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		observability.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
		if status == http.StatusInternalServerError {
			writeJSON(w, status, errorResponse{Error: "internal error"})
			return
		}
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// clientMessage is the text shown for an error that arrives after a stream
// has started. Upstream failures get the localized apology, never the wrapped chain.
func clientMessage(r *http.Request, err error) string {
	lang := local.ParseLanguage(r.Header.Get("Accept-Language"))
	switch status := statusFor(err); {
	case status == http.StatusTooManyRequests:
		return local.TextCredentialsExhausted.Text(lang)
	case status >= http.StatusInternalServerError:
		return local.TextServerError.Text(lang)
	default:
		return err.Error()
	}
}

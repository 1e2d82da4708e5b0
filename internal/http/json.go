package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/dhanmatrix/dhanmatrix/internal/errors"
)

// maxJSONBody caps request bodies on the JSON API.
const maxJSONBody = 1 << 20

// DecodeJSON reads exactly one JSON object into dst. On failure it has already written a
// 400 and returns false.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err == nil && dec.Decode(&struct{}{}) != io.EOF {
		err = errors.New("request body must hold a single JSON object")
	}
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_json", Err: err})
		return false
	}
	return true
}

// WriteJSON encodes v before touching the response so an encoding failure can still be a 500.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = fmt.Fprintf(w, "%s\n", body)
}

type ErrorParams struct {
	Code    int
	ErrCode string
	Err     error
	Field   string
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// WriteError writes {"error","message","field"} with status p.Code.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	WriteJSON(w, p.Code, errorBody{Error: p.ErrCode, Message: p.Err.Error(), Field: p.Field})
}

// WriteAppError reports err by its AppError code. Anything that maps to 500 is replaced
// with a generic message.
func WriteAppError(w http.ResponseWriter, err error) {
	status := StatusForError(err)
	if status == http.StatusInternalServerError {
		WriteError(w, ErrorParams{Code: status, ErrCode: string(apperrors.ErrCodeInternal), Err: errors.New("internal error")})
		return
	}
	WriteError(w, ErrorParams{
		Code:    status,
		ErrCode: string(apperrors.GetCode(err)),
		Err:     err,
		Field:   apperrors.GetField(err),
	})
}

var statusByCode = map[apperrors.ErrorCode]int{
	apperrors.ErrCodeValidation:         http.StatusBadRequest,
	apperrors.ErrCodeForeignKey:         http.StatusBadRequest,
	apperrors.ErrCodeProviderCancelled:  http.StatusBadRequest,
	apperrors.ErrCodeCanceled:           http.StatusBadRequest,
	apperrors.ErrCodeInvalidCredentials: http.StatusUnauthorized,
	apperrors.ErrCodePermissionDenied:   http.StatusForbidden,
	apperrors.ErrCodeNotFound:           http.StatusNotFound,
	apperrors.ErrCodeConflict:           http.StatusConflict,
	apperrors.ErrCodeNetwork:            http.StatusServiceUnavailable,
	apperrors.ErrCodeTimeout:            http.StatusServiceUnavailable,
}

// StatusForError maps an AppError code to a status. Uncoded errors are 500.
func StatusForError(err error) int {
	if status, ok := statusByCode[apperrors.GetCode(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

package apperr

import (
	"encoding/json"
	"net/http"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// WriteError writes err as a JSON error response. Non-*Error values are
// downgraded to INTERNAL so causes never leak to the caller.
func WriteError(w http.ResponseWriter, err error) {
	ae := FromError(err)

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(ae.HTTPStatus)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Code:    ae.Code,
		Message: ae.Message,
		Detail:  ae.Detail,
	})
}

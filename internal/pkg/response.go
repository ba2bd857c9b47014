package pkg

import (
	"encoding/json"
	"fmt"
	"net/http"
)

type BaseResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// JsonResponse writes d as an indented JSON body with the given status code.
func JsonResponse(w http.ResponseWriter, d any, c int) {
	dj, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		http.Error(w, "Error creating JSON response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(c)

	_, _ = fmt.Fprintf(w, "%s", dj)
}

// FailResponse writes a BaseResponse envelope for err using the taxonomy
// status mapping.
func FailResponse(w http.ResponseWriter, err error) {
	JsonResponse(w, BaseResponse{
		Success: false,
		Message: err.Error(),
		Data:    nil,
	}, HTTPStatus(err))
}

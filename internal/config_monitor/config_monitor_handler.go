package config_monitor

import (
	"encoding/json"
	"net/http"

	"pollwatch/internal/pkg"
)

func ValidateHandler(configMonitorSvc ConfigMonitorService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload ValidationInput
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			pkg.JsonResponse(w, pkg.BaseResponse{
				Success: false,
				Message: "invalid req body",
				Data:    nil,
			}, http.StatusBadRequest)
			return
		}

		result, err := configMonitorSvc.Validate(r.Context(), payload)
		if err != nil {
			pkg.FailResponse(w, err)
			return
		}

		pkg.JsonResponse(w, pkg.BaseResponse{
			Success: true,
			Message: result.Message,
			Data:    result,
		}, http.StatusOK)
	}
}

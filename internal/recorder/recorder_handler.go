package recorder

import (
	"encoding/json"
	"net/http"

	"pollwatch/internal/pkg"
)

type activateRequest struct {
	ConfigID string `json:"config_id"`
	OwnerKey string `json:"owner_key"`
}

func ActivateHandler(schedulerSvc SchedulerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload activateRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			pkg.JsonResponse(w, pkg.BaseResponse{
				Success: false,
				Message: "invalid req body",
				Data:    nil,
			}, http.StatusBadRequest)
			return
		}

		result, err := schedulerSvc.Activate(r.Context(), payload.ConfigID, payload.OwnerKey)
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

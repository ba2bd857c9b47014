package exposer

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pollwatch/internal/pkg"
)

func RetrieveHandler(exposerSvc ExposerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		configID := chi.URLParam(r, "configID")
		ownerKey := r.Header.Get("X-Owner-Key")
		if ownerKey == "" {
			ownerKey = r.URL.Query().Get("owner_key")
		}

		query := r.URL.Query()
		mode, err := ParseMode(query.Get("mode"))
		if err != nil {
			pkg.FailResponse(w, err)
			return
		}

		// Optional latency-sample window for full mode: an explicit
		// start/end pair or a relative duration like "30m".
		var sampleRange *pkg.TimeRange
		if query.Get("start") != "" || query.Get("end") != "" || query.Get("duration") != "" {
			parsed, err := pkg.ParseTimeRange(query.Get("start"), query.Get("end"), query.Get("duration"))
			if err != nil {
				pkg.FailResponse(w, fmt.Errorf("%w: invalid sample range: %v", pkg.ErrInput, err))
				return
			}
			sampleRange = &parsed
		}

		result, err := exposerSvc.Retrieve(r.Context(), configID, ownerKey, mode, sampleRange)
		if err != nil {
			pkg.FailResponse(w, err)
			return
		}

		pkg.JsonResponse(w, pkg.BaseResponse{
			Success: true,
			Message: "data retrieved successfully",
			Data:    result,
		}, http.StatusOK)
	}
}

// internal/handler/response.go
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/hlog"

	appErrors "github.com/unclebandit/garage-campaigns/internal/errors"
)

// TenantHeader carries the tenant every request acts for.
const TenantHeader = "X-Tenant-ID"

var (
	errMissingTenant = errors.New("missing or invalid " + TenantHeader + " header")
	errBadCampaignID = errors.New("invalid campaign id")
)

// Scope reads the tenant header and the {id} route parameter.
func Scope(r *http.Request) (tenantID, campaignID uuid.UUID, err error) {
	tenantID, err = uuid.Parse(r.Header.Get(TenantHeader))
	if err != nil || tenantID == uuid.Nil {
		return uuid.Nil, uuid.Nil, errMissingTenant
	}
	campaignID, err = uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, errBadCampaignID
	}
	return tenantID, campaignID, nil
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps domain errors to status codes. Unexpected errors are logged
// and answered with a generic 500.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errMissingTenant), errors.Is(err, errBadCampaignID):
		status = http.StatusBadRequest
	case appErrors.IsCampaignNotFound(err), errors.Is(err, appErrors.ErrCustomerNotFound):
		status = http.StatusNotFound
	case appErrors.IsInvalidTransition(err):
		status = http.StatusConflict
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		msg = "internal server error"
	}
	WriteJSON(w, status, map[string]string{"error": msg})
}

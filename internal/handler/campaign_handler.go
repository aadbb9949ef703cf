// internal/handler/campaign_handler.go
package handler

import (
	"net/http"

	"github.com/unclebandit/garage-campaigns/internal/service"
)

// CampaignHandler serves campaign reads
type CampaignHandler struct {
	Service *service.CampaignService
}

func NewCampaignHandler(svc *service.CampaignService) *CampaignHandler {
	return &CampaignHandler{Service: svc}
}

// GetCampaignHandlerWithStats returns the campaign with per-status contact counts.
func (h *CampaignHandler) GetCampaignHandlerWithStats(w http.ResponseWriter, r *http.Request) {
	tenantID, campaignID, err := Scope(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	details, err := h.Service.GetCampaignDetailsWithStats(r.Context(), tenantID, campaignID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, details)
}

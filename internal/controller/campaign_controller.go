// internal/controller/campaign_controller.go
package controller

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/unclebandit/garage-campaigns/internal/handler"
	"github.com/unclebandit/garage-campaigns/internal/service"
)

// CampaignController serves the campaign commands: send, requeue and preview.
type CampaignController struct {
	CampaignService *service.CampaignService
	validate        *validator.Validate
}

func NewCampaignController(svc *service.CampaignService) *CampaignController {
	return &CampaignController{CampaignService: svc, validate: validator.New()}
}

type previewRequest struct {
	CustomerID       string  `json:"customer_id" validate:"required,uuid"`
	OverrideTemplate *string `json:"override_template" validate:"omitempty,max=200000"`
}

// SendCampaign queues the campaign for delivery. The response is 202: sending
// happens in the job runner.
func (c *CampaignController) SendCampaign(w http.ResponseWriter, r *http.Request) {
	tenantID, campaignID, err := handler.Scope(r)
	if err != nil {
		handler.WriteError(w, r, err)
		return
	}

	result, err := c.CampaignService.Enqueue(r.Context(), tenantID, campaignID)
	if err != nil {
		handler.WriteError(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusAccepted, result)
}

// RequeueCampaign hands a campaign stuck in processing back to the job runner.
func (c *CampaignController) RequeueCampaign(w http.ResponseWriter, r *http.Request) {
	tenantID, campaignID, err := handler.Scope(r)
	if err != nil {
		handler.WriteError(w, r, err)
		return
	}

	result, err := c.CampaignService.RequeueStuck(r.Context(), tenantID, campaignID)
	if err != nil {
		handler.WriteError(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusAccepted, result)
}

func (c *CampaignController) PersonalizedPreview(w http.ResponseWriter, r *http.Request) {
	tenantID, campaignID, err := handler.Scope(r)
	if err != nil {
		handler.WriteError(w, r, err)
		return
	}

	var body previewRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		handler.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	if err := c.validate.Struct(body); err != nil {
		handler.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	customerID := uuid.MustParse(body.CustomerID)

	preview, err := c.CampaignService.RenderPreview(r.Context(), tenantID, campaignID, customerID, body.OverrideTemplate)
	if err != nil {
		handler.WriteError(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, map[string]any{
		"customer_id":   customerID,
		"used_override": body.OverrideTemplate != nil && strings.TrimSpace(*body.OverrideTemplate) != "",
		"preview":       preview,
	})
}

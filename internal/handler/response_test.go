package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/garage-campaigns/internal/errors"
)

func withRouteID(r *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestScope(t *testing.T) {
	tenantID, campaignID := uuid.New(), uuid.New()

	r := withRouteID(httptest.NewRequest(http.MethodGet, "/campaigns/x", nil), campaignID.String())
	r.Header.Set(TenantHeader, tenantID.String())
	gotTenant, gotCampaign, err := Scope(r)
	require.NoError(t, err)
	assert.Equal(t, tenantID, gotTenant)
	assert.Equal(t, campaignID, gotCampaign)

	noTenant := withRouteID(httptest.NewRequest(http.MethodGet, "/campaigns/x", nil), campaignID.String())
	_, _, err = Scope(noTenant)
	assert.ErrorIs(t, err, errMissingTenant)

	badID := withRouteID(httptest.NewRequest(http.MethodGet, "/campaigns/x", nil), "42")
	badID.Header.Set(TenantHeader, tenantID.String())
	_, _, err = Scope(badID)
	assert.ErrorIs(t, err, errBadCampaignID)
}

func TestWriteError(t *testing.T) {
	id := uuid.New()
	cases := []struct {
		err    error
		status int
		body   string
	}{
		{errMissingTenant, http.StatusBadRequest, errMissingTenant.Error()},
		{appErrors.NewCampaignNotFound(id), http.StatusNotFound, "campaign with ID " + id.String() + " not found"},
		{appErrors.ErrCustomerNotFound, http.StatusNotFound, "customer not found"},
		{appErrors.NewInvalidTransition(id, "sent", "queued"), http.StatusConflict, "campaign " + id.String() + " cannot move from sent to queued"},
		{errors.New("pq: connection refused"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		WriteError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tc.err)

		assert.Equal(t, tc.status, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		var got map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, tc.body, got["error"])
	}
}

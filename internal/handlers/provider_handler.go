package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"gotow/internal/models"
	"gotow/internal/repositories/interfaces"
	"gotow/internal/services"
	"gotow/internal/utils"
	"gotow/internal/validators"
)

type ProviderHandler struct {
	providerService services.ProviderService
	arbiterService  services.ArbiterService
}

func NewProviderHandler(providerService services.ProviderService, arbiterService services.ArbiterService) *ProviderHandler {
	return &ProviderHandler{
		providerService: providerService,
		arbiterService:  arbiterService,
	}
}

// Register creates a provider profile for the authenticated user
func (h *ProviderHandler) Register(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req validators.ProviderRegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if errs := validators.ValidateProviderRegisterRequest(&req); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs.Fields())
		return
	}

	provider := &models.Provider{
		UserID:        userID,
		Name:          req.Name,
		Phone:         req.Phone,
		TowingCapable: true,
		TruckType:     req.TruckType,
		TruckPlate:    req.TruckPlate,
		MaxTowWeight:  req.MaxTowWeight,
	}

	if err := h.providerService.Register(c.Request.Context(), provider); err != nil {
		respondServiceError(c, err, "Provider")
		return
	}

	utils.CreatedResponse(c, "Provider registered successfully", provider)
}

// GetProfile retrieves the authenticated provider's profile
func (h *ProviderHandler) GetProfile(c *gin.Context) {
	provider, ok := h.currentProvider(c)
	if !ok {
		return
	}

	utils.SuccessResponse(c, "Provider retrieved successfully", provider)
}

// Respond records the provider's accept or reject for a dispatched
// request. Losing a race for an already assigned request is a conflict
// response that carries the winning snapshot, not a bare error.
func (h *ProviderHandler) Respond(c *gin.Context) {
	provider, ok := h.currentProvider(c)
	if !ok {
		return
	}

	var req validators.RespondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if errs := validators.ValidateRespondRequest(&req); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs.Fields())
		return
	}

	requestID, err := primitive.ObjectIDFromHex(req.RequestID)
	if err != nil {
		utils.BadRequestResponse(c, "Invalid request ID")
		return
	}

	result, err := h.arbiterService.Respond(c.Request.Context(), requestID, provider.ID, req.Response == "accept")
	if err != nil {
		respondServiceError(c, err, "Request")
		return
	}

	if result.Outcome == utils.RespondOutcomeConflict {
		utils.ConflictResponse(c, "Request was assigned to another provider", result)
		return
	}
	utils.SuccessResponse(c, "Response recorded successfully", result)
}

// Progress advances the assigned request through the towing lifecycle
func (h *ProviderHandler) Progress(c *gin.Context) {
	provider, ok := h.currentProvider(c)
	if !ok {
		return
	}
	requestID, ok := pathObjectID(c, "id")
	if !ok {
		return
	}

	var req validators.ProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if errs := validators.ValidateProgressRequest(&req); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs.Fields())
		return
	}

	request, err := h.arbiterService.Progress(c.Request.Context(), requestID, provider.ID, models.RequestStatus(req.Status))
	if err != nil {
		respondServiceError(c, err, "Request")
		return
	}

	utils.SuccessResponse(c, "Request status updated successfully", request)
}

// GetPendingOffers lists dispatched requests still awaiting this
// provider's response
func (h *ProviderHandler) GetPendingOffers(c *gin.Context) {
	provider, ok := h.currentProvider(c)
	if !ok {
		return
	}

	offers, err := h.providerService.GetPendingOffers(c.Request.Context(), provider.ID)
	if err != nil {
		respondServiceError(c, err, "Provider")
		return
	}

	utils.SuccessResponse(c, "Pending offers retrieved successfully", map[string]interface{}{
		"offers": offers,
	})
}

// DrainDeliveries returns and acknowledges queued notifications for
// providers without a live websocket
func (h *ProviderHandler) DrainDeliveries(c *gin.Context) {
	provider, ok := h.currentProvider(c)
	if !ok {
		return
	}

	envelopes, err := h.providerService.DrainDeliveries(c.Request.Context(), provider.ID)
	if err != nil {
		respondServiceError(c, err, "Provider")
		return
	}

	utils.SuccessResponse(c, "Deliveries retrieved successfully", map[string]interface{}{
		"deliveries": envelopes,
	})
}

// SetAvailability toggles whether the provider receives new offers
func (h *ProviderHandler) SetAvailability(c *gin.Context) {
	provider, ok := h.currentProvider(c)
	if !ok {
		return
	}

	var req validators.ProviderAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}

	if err := h.providerService.SetAvailability(c.Request.Context(), provider.ID, req.Available); err != nil {
		respondServiceError(c, err, "Provider")
		return
	}

	status := models.ProviderStatusOffline
	if req.Available {
		status = models.ProviderStatusOnline
	}
	if err := h.providerService.SetStatus(c.Request.Context(), provider.ID, status); err != nil {
		respondServiceError(c, err, "Provider")
		return
	}

	utils.SuccessResponse(c, "Availability updated successfully", nil)
}

// UpdateLocation records the provider's current position
func (h *ProviderHandler) UpdateLocation(c *gin.Context) {
	provider, ok := h.currentProvider(c)
	if !ok {
		return
	}

	var req validators.ProviderLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if errs := validators.ValidateProviderLocationRequest(&req); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs.Fields())
		return
	}

	if err := h.providerService.UpdateLocation(c.Request.Context(), provider.ID, req.Latitude, req.Longitude); err != nil {
		respondServiceError(c, err, "Provider")
		return
	}

	utils.SuccessResponse(c, "Location updated successfully", nil)
}

// AddDeviceToken registers a push token for dispatch alerts
func (h *ProviderHandler) AddDeviceToken(c *gin.Context) {
	provider, ok := h.currentProvider(c)
	if !ok {
		return
	}

	var req validators.DeviceTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if errs := validators.ValidateDeviceTokenRequest(&req); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs.Fields())
		return
	}

	if err := h.providerService.AddDeviceToken(c.Request.Context(), provider.ID, req.Platform, req.Token); err != nil {
		respondServiceError(c, err, "Provider")
		return
	}

	utils.SuccessResponse(c, "Device token registered successfully", nil)
}

// RemoveDeviceToken unregisters a push token
func (h *ProviderHandler) RemoveDeviceToken(c *gin.Context) {
	provider, ok := h.currentProvider(c)
	if !ok {
		return
	}

	token := c.Param("token")
	if token == "" {
		utils.BadRequestResponse(c, "Missing token")
		return
	}

	if err := h.providerService.RemoveDeviceToken(c.Request.Context(), provider.ID, token); err != nil {
		respondServiceError(c, err, "Provider")
		return
	}

	utils.SuccessResponse(c, "Device token removed successfully", nil)
}

func (h *ProviderHandler) currentProvider(c *gin.Context) (*models.Provider, bool) {
	userID, ok := currentUserID(c)
	if !ok {
		return nil, false
	}

	provider, err := h.providerService.GetByUserID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			utils.ErrorResponse(c, http.StatusForbidden, "NOT_A_PROVIDER", "No provider profile for this account")
			return nil, false
		}
		respondServiceError(c, err, "Provider")
		return nil, false
	}

	return provider, true
}

package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"gotow/internal/models"
	"gotow/internal/services"
	"gotow/internal/utils"
	"gotow/internal/validators"
)

type RequestHandler struct {
	intakeService  services.IntakeService
	trackerService services.TrackerService
}

func NewRequestHandler(intakeService services.IntakeService, trackerService services.TrackerService) *RequestHandler {
	return &RequestHandler{
		intakeService:  intakeService,
		trackerService: trackerService,
	}
}

// SubmitRequest opens a towing request and starts dispatch. A replayed
// idempotency key returns the original request with a 200 instead of 201.
func (h *RequestHandler) SubmitRequest(c *gin.Context) {
	requesterID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req validators.SubmitRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}

	// The header wins over the body field when both are present.
	if key := c.GetHeader("X-Idempotency-Key"); key != "" {
		req.IdempotencyKey = key
	}

	if errs := validators.ValidateSubmitRequest(&req); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs.Fields())
		return
	}

	request, created, err := h.intakeService.Submit(c.Request.Context(), &services.SubmitInput{
		RequesterID:    requesterID,
		IdempotencyKey: req.IdempotencyKey,
		VehicleInfo: models.VehicleInfo{
			Type:  req.VehicleInfo.Type,
			Brand: req.VehicleInfo.Brand,
			Model: req.VehicleInfo.Model,
			Year:  req.VehicleInfo.Year,
			Plate: req.VehicleInfo.Plate,
		},
		Latitude:       req.Location.Latitude,
		Longitude:      req.Location.Longitude,
		Address:        req.Location.Address,
		AccuracyMeters: req.Location.AccuracyMeters,
		Reason:         req.Emergency.Reason,
		Description:    req.Emergency.Description,
		Severity:       models.Severity(req.Emergency.Severity),
	})
	if err != nil {
		respondServiceError(c, err, "Request")
		return
	}

	if created {
		utils.CreatedResponse(c, "Towing request submitted successfully", request)
		return
	}
	utils.SuccessResponse(c, "Towing request already submitted", request)
}

// GetRequest retrieves the current request snapshot
func (h *RequestHandler) GetRequest(c *gin.Context) {
	requestID, ok := pathObjectID(c, "id")
	if !ok {
		return
	}

	request, err := h.intakeService.Get(c.Request.Context(), requestID)
	if err != nil {
		respondServiceError(c, err, "Request")
		return
	}

	utils.SuccessResponse(c, "Request retrieved successfully", request)
}

// CancelRequest cancels a pending or accepted request
func (h *RequestHandler) CancelRequest(c *gin.Context) {
	requestID, ok := pathObjectID(c, "id")
	if !ok {
		return
	}
	requesterID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req validators.CancelRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// An empty body means no reason was given.
		req.Reason = ""
	}

	request, err := h.intakeService.Cancel(c.Request.Context(), requestID, requesterID, req.Reason)
	if err != nil {
		respondServiceError(c, err, "Request")
		return
	}

	utils.SuccessResponse(c, "Request cancelled successfully", request)
}

// GetActiveRequests retrieves the requester's open requests
func (h *RequestHandler) GetActiveRequests(c *gin.Context) {
	requesterID, ok := currentUserID(c)
	if !ok {
		return
	}

	requests, err := h.intakeService.GetActiveByRequester(c.Request.Context(), requesterID)
	if err != nil {
		respondServiceError(c, err, "Request")
		return
	}

	utils.SuccessResponse(c, "Active requests retrieved successfully", map[string]interface{}{
		"requests": requests,
	})
}

// GetRequestHistory retrieves the requester's request history
func (h *RequestHandler) GetRequestHistory(c *gin.Context) {
	requesterID, ok := currentUserID(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	requests, total, err := h.intakeService.GetHistory(c.Request.Context(), requesterID, params)
	if err != nil {
		respondServiceError(c, err, "Request")
		return
	}

	meta := &utils.Meta{
		Pagination: utils.CreatePaginationMeta(params, total),
	}

	utils.SuccessResponseWithMeta(c, "Request history retrieved successfully", map[string]interface{}{
		"requests": requests,
	}, meta)
}

// GetRequestEvents replays the dispatch event feed for a request.
// Clients pass after_version to resume from their last seen event.
func (h *RequestHandler) GetRequestEvents(c *gin.Context) {
	requestID, ok := pathObjectID(c, "id")
	if !ok {
		return
	}

	afterVersion := int64(0)
	if raw := c.Query("after_version"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			utils.BadRequestResponse(c, "Invalid after_version")
			return
		}
		afterVersion = parsed
	}

	events, err := h.trackerService.GetEvents(c.Request.Context(), requestID, afterVersion)
	if err != nil {
		respondServiceError(c, err, "Request")
		return
	}

	utils.SuccessResponse(c, "Events retrieved successfully", map[string]interface{}{
		"events": events,
	})
}

func currentUserID(c *gin.Context) (primitive.ObjectID, bool) {
	userID, exists := c.Get("user_id")
	if !exists {
		utils.UnauthorizedResponse(c)
		return primitive.NilObjectID, false
	}

	userObjectID, ok := userID.(primitive.ObjectID)
	if !ok {
		utils.BadRequestResponse(c, "Invalid user ID")
		return primitive.NilObjectID, false
	}

	return userObjectID, true
}

func pathObjectID(c *gin.Context, name string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid "+name)
		return primitive.NilObjectID, false
	}
	return id, true
}

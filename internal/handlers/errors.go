package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"

	"gotow/internal/repositories/interfaces"
	"gotow/internal/services"
	"gotow/internal/utils"
)

// respondServiceError translates service layer sentinels into API
// responses. Anything unrecognized is reported as an internal error.
func respondServiceError(c *gin.Context, err error, resource string) {
	switch {
	case errors.Is(err, services.ErrValidation):
		utils.BadRequestResponse(c, err.Error())
	case errors.Is(err, services.ErrNotAllowed):
		utils.ForbiddenResponse(c)
	case errors.Is(err, interfaces.ErrNotFound):
		utils.NotFoundResponse(c, resource)
	case errors.Is(err, interfaces.ErrInvalidTransition):
		utils.ConflictResponse(c, "Requested transition is not allowed from the current status", nil)
	case errors.Is(err, interfaces.ErrTerminalState):
		utils.ConflictResponse(c, "Request is already in a terminal state", nil)
	case errors.Is(err, interfaces.ErrAlreadyAssigned):
		utils.ConflictResponse(c, "Request is already assigned to another provider", nil)
	default:
		utils.InternalServerErrorResponse(c)
	}
}

package handlers

import (
	"errors"
	"net/http"

	"github.com/pollenlabs/nectar-gateway/services"
	"github.com/pollenlabs/nectar-gateway/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	details := services.GetErrorDetails(err)

	switch {
	case services.IsNotFoundError(err):
		if err := utils.WriteNotFound(w, err.Error()); err != nil {
			logger.Error("failed to write not found response", zap.Error(err))
		}

	case services.IsValidationError(err):
		if err := utils.WriteBadRequest(w, err.Error(), details); err != nil {
			logger.Error("failed to write bad request response", zap.Error(err))
		}

	case services.IsUnauthorizedError(err):
		if err := utils.WriteUnauthorized(w, err.Error()); err != nil {
			logger.Error("failed to write unauthorized response", zap.Error(err))
		}

	case services.IsForbiddenError(err):
		if err := utils.WriteForbidden(w, err.Error(), details); err != nil {
			logger.Error("failed to write forbidden response", zap.Error(err))
		}

	case services.IsBackpressureError(err):
		retryAfter := 1
		if v, ok := details["retry_after_seconds"].(int); ok && v > 0 {
			retryAfter = v
		}
		if err := utils.WriteTooManyRequests(w, err.Error(), retryAfter); err != nil {
			logger.Error("failed to write backpressure response", zap.Error(err))
		}

	case services.IsExternalError(err):
		if err := utils.WriteBadGateway(w, err.Error()); err != nil {
			logger.Error("failed to write bad gateway response", zap.Error(err))
		}

	default:
		logger.Error("internal server error", zap.Error(err))
		if err := utils.WriteInternalServerError(w, "An internal error occurred"); err != nil {
			logger.Error("failed to write internal error response", zap.Error(err))
		}
	}
}

// HandleValidationError maps request validation failures to 400 responses
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var vErr *utils.ValidationError
	if errors.As(err, &vErr) {
		if err := utils.WriteBadRequest(w, "Validation failed", vErr.Details()); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}

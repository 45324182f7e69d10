// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/amirphl/Amaterasu/app/dto"
	businessflow "github.com/amirphl/Amaterasu/business_flow"
	"github.com/amirphl/Amaterasu/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

const defaultRequestTimeout = 30 * time.Second

// responder carries the response helpers shared by every handler
type responder struct {
	validator *validator.Validate
}

func newResponder() responder {
	return responder{validator: validator.New()}
}

func (h responder) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h responder) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// validate runs struct validation and writes the 400 response on failure.
// ok is false when a response has been written.
func (h responder) validate(c fiber.Ctx, req any) (bool, error) {
	if err := h.validator.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return false, h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", err.Error())
		}
		var validationErrors []string
		for _, fe := range fieldErrs {
			validationErrors = append(validationErrors, getValidationErrorMessage(fe))
		}
		return false, h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}
	return true, nil
}

// BusinessErrorResponse maps a flow error onto an HTTP status by its kind
func (h responder) BusinessErrorResponse(c fiber.Ctx, err error, fallbackMessage, fallbackCode string) error {
	var be *businessflow.BusinessError
	if !errors.As(err, &be) {
		log.Printf("%s: %v", fallbackMessage, err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, fallbackMessage, fallbackCode, nil)
	}

	status := statusForKind(be.Kind)
	if status == fiber.StatusInternalServerError {
		log.Printf("%s: %v", fallbackMessage, err)
		return h.ErrorResponse(c, status, fallbackMessage, be.Code, nil)
	}
	return h.ErrorResponse(c, status, be.Message, be.Code, fiber.Map{"kind": be.Kind})
}

func statusForKind(kind businessflow.ErrorKind) int {
	switch kind {
	case businessflow.KindValidation:
		return fiber.StatusBadRequest
	case businessflow.KindConflict:
		return fiber.StatusConflict
	case businessflow.KindInvalidState:
		return fiber.StatusUnprocessableEntity
	case businessflow.KindNotFound:
		return fiber.StatusNotFound
	case businessflow.KindProvider, businessflow.KindProviderRejection:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// createRequestContext creates a context with request-scoped values and a timeout
func createRequestContext(c fiber.Ctx, endpoint string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultRequestTimeout)

	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)

	return ctx, cancel
}

func queryLimit(c fiber.Ctx) int {
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		return v
	}
	return 0
}

func getValidationErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return err.Field() + " is required"
	case "min":
		return err.Field() + " must be at least " + err.Param() + " characters"
	case "max":
		return err.Field() + " must be at most " + err.Param() + " characters"
	case "oneof":
		return err.Field() + " must be one of: " + err.Param()
	case "numeric":
		return err.Field() + " must contain only numbers"
	case "uuid4":
		return err.Field() + " must be a valid UUID"
	case "printascii":
		return err.Field() + " must contain only printable ASCII characters"
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", err.Field(), err.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", err.Field(), err.Param())
	default:
		return err.Field() + " is invalid"
	}
}

package http

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"

	"famledger/internal/core"
	"famledger/internal/log"
	"famledger/internal/sheets"
	"famledger/internal/state"
)

var errNoSession = errors.New("no signed-in user")

var validationErrors = []error{
	core.ErrEmptyID,
	core.ErrInvalidDate,
	core.ErrInvalidAmount,
	core.ErrInvalidType,
	core.ErrInvalidPaymentMethod,
	core.ErrEmptyCategory,
	core.ErrEmptyName,
	core.ErrDescriptionTooLong,
	core.ErrEmptyTitle,
	core.ErrInvalidStatus,
	core.ErrInvalidPriority,
	core.ErrInvalidReminder,
}

// statusOf maps domain errors to response codes.
func statusOf(err error) int {
	var fe *fiber.Error
	var te *json.UnmarshalTypeError
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.As(err, &te):
		return fiber.StatusBadRequest
	case errors.Is(err, state.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, state.ErrDuplicateCategory), errors.Is(err, core.ErrTaskDone):
		return fiber.StatusConflict
	case errors.Is(err, sheets.ErrNotConfigured):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, errNoSession):
		return fiber.StatusUnauthorized
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return fiber.StatusBadRequest
		}
	}
	return fiber.StatusInternalServerError
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := statusOf(err)
	msg := err.Error()
	if code == fiber.StatusInternalServerError {
		log.FromContext(c.UserContext()).ErrorContext(c.UserContext(), "Request failed", log.FieldError, err)
		msg = "internal error"
	}
	return c.Status(code).JSON(fiber.Map{"error": msg})
}

func badRequest(msg string) error {
	return fiber.NewError(fiber.StatusBadRequest, msg)
}

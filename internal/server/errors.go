package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	bundledomain "github.com/smallbiznis/mealsub/internal/bundle/domain"
	menudomain "github.com/smallbiznis/mealsub/internal/menu/domain"
	paymentdomain "github.com/smallbiznis/mealsub/internal/payment/domain"
	subscriptiondomain "github.com/smallbiznis/mealsub/internal/subscription/domain"
	sweeperdomain "github.com/smallbiznis/mealsub/internal/sweeper/domain"
	vendordomain "github.com/smallbiznis/mealsub/internal/vendors/domain"
	"github.com/smallbiznis/mealsub/pkg/db/pagination"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

// validationErrors are rejected before any state is touched.
var validationErrors = []error{
	ErrInvalidRequest,
	subscriptiondomain.ErrInvalidUser,
	subscriptiondomain.ErrInvalidPeriod,
	subscriptiondomain.ErrInvalidStatus,
	vendordomain.ErrInvalidPeriod,
	menudomain.ErrInvalidMealType,
	bundledomain.ErrInvalidBundleSize,
	bundledomain.ErrDuplicateVendor,
	bundledomain.ErrInvalidAddress,
	paymentdomain.ErrInvalidAmount,
	paymentdomain.ErrInvalidMethod,
	paymentdomain.ErrInvalidCurrency,
	paymentdomain.ErrInvalidPaymentDetails,
	paymentdomain.ErrUnsupportedMethod,
	pagination.ErrInvalidPageToken,
}

// businessErrors map rule violations to their status. Order matters:
// invalid_reference wraps the directory not-found errors.
var businessErrors = []struct {
	err    error
	status int
}{
	{subscriptiondomain.ErrInvalidReference, http.StatusUnprocessableEntity},
	{subscriptiondomain.ErrMealTypeMismatch, http.StatusUnprocessableEntity},
	{menudomain.ErrMenuVendorMismatch, http.StatusUnprocessableEntity},
	{paymentdomain.ErrAmountMismatch, http.StatusUnprocessableEntity},
	{paymentdomain.ErrRefundExceedsNet, http.StatusUnprocessableEntity},
	{subscriptiondomain.ErrCapacityExceeded, http.StatusConflict},
	{subscriptiondomain.ErrInvalidTransition, http.StatusConflict},
	{subscriptiondomain.ErrAlreadyExpired, http.StatusConflict},
	{bundledomain.ErrMemberOutOfSync, http.StatusConflict},
	{paymentdomain.ErrAlreadyPaid, http.StatusConflict},
	{paymentdomain.ErrChargeInProgress, http.StatusConflict},
	{paymentdomain.ErrBilledThroughBundle, http.StatusConflict},
	{paymentdomain.ErrNothingToRefund, http.StatusConflict},
	{sweeperdomain.ErrAlreadySwept, http.StatusConflict},
	{sweeperdomain.ErrSweepLocked, http.StatusConflict},
	{sweeperdomain.ErrDisabled, http.StatusConflict},
	{paymentdomain.ErrPaymentFailed, http.StatusPaymentRequired},
	{paymentdomain.ErrRefundFailed, http.StatusBadGateway},
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if code, ok := validationErrorCode(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	for _, be := range businessErrors {
		if errors.Is(err, be.err) {
			return be.status, errorPayload{
				Type:    be.err.Error(),
				Message: err.Error(),
			}
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the access log with the same type the client sees.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		return "internal", payload.Type
	}
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	return "client", payload.Type
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound),
		errors.Is(err, bundledomain.ErrBundleNotFound),
		errors.Is(err, paymentdomain.ErrPaymentNotFound),
		errors.Is(err, menudomain.ErrMenuNotFound),
		errors.Is(err, vendordomain.ErrVendorNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) (string, bool) {
	for _, candidate := range validationErrors {
		if errors.Is(err, candidate) {
			return candidate.Error(), true
		}
	}
	return "", false
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "invalid_bundle_size":
		return "a bundle needs between 1 and 4 vendors"
	case "duplicate_vendor":
		return "each vendor may appear once per bundle"
	default:
		return "invalid value"
	}
}

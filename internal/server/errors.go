package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	affiliatedomain "github.com/smallbiznis/ambassador/internal/affiliate/domain"
	ambassadordomain "github.com/smallbiznis/ambassador/internal/ambassador/domain"
	"github.com/smallbiznis/ambassador/internal/authorization"
	"github.com/smallbiznis/ambassador/internal/graph"
	invitationdomain "github.com/smallbiznis/ambassador/internal/invitation/domain"
	outboxdomain "github.com/smallbiznis/ambassador/internal/outbox/domain"
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

type errorResponse struct {
	Success bool              `json:"success"`
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Details []ValidationError `json:"details,omitempty"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

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
		c.AbortWithStatusJSON(status, payload)
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

func mapError(err error) (int, errorResponse) {
	if err == nil {
		return http.StatusInternalServerError, failure("internal_error", "internal server error")
	}

	if vErr := asValidationErrors(err); vErr != nil {
		resp := failure("validation_error", "validation error")
		if len(vErr.Errors) == 1 {
			resp.Code = vErr.Errors[0].Code
			resp.Error = vErr.Errors[0].Message
		}
		resp.Details = vErr.Errors
		return http.StatusBadRequest, resp
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, failure(code, validationErrorMessage(code))
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, failure("unauthorized", "unauthorized")
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, failure("forbidden", "forbidden")
	case isNotFoundError(err):
		return http.StatusNotFound, failure(notFoundCode(err), "not found")
	case errors.Is(err, invitationdomain.ErrAlreadyAccepted):
		return http.StatusConflict, failure("invitation_already_accepted", "invitation has already been accepted")
	case errors.Is(err, outboxdomain.ErrNotRetryable):
		return http.StatusConflict, failure("task_not_failed", "only failed tasks can be retried")
	case errors.Is(err, ErrConflict):
		return http.StatusConflict, failure("conflict", "conflict")
	case errors.Is(err, invitationdomain.ErrExpired):
		return http.StatusGone, failure("invitation_expired", "invitation has expired")
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, failure("rate_limited", "too many requests")
	case errors.Is(err, graph.ErrUpstream):
		return http.StatusBadGateway, failure("graph_service_unavailable", "graph service unavailable")
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, failure("service_unavailable", "service unavailable")
	default:
		return http.StatusInternalServerError, failure("internal_error", "internal server error")
	}
}

func failure(code, message string) errorResponse {
	return errorResponse{Success: false, Error: message, Code: code}
}

// classifyErrorForLog returns the error class and the response code.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch status {
	case http.StatusBadRequest:
		return "validation", payload.Code
	case http.StatusUnauthorized, http.StatusForbidden:
		return "auth", payload.Code
	case http.StatusNotFound:
		return "not_found", payload.Code
	case http.StatusConflict:
		return "conflict", payload.Code
	case http.StatusGone:
		return "expired", payload.Code
	case http.StatusTooManyRequests:
		return "rate_limited", payload.Code
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return "upstream", payload.Code
	default:
		return "internal", payload.Code
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return true
	case isInvitationValidationError(err),
		isAffiliateValidationError(err),
		isAmbassadorValidationError(err),
		errors.Is(err, outboxdomain.ErrInvalidID),
		errors.Is(err, outboxdomain.ErrInvalidKind):
		return true
	default:
		return false
	}
}

func isInvitationValidationError(err error) bool {
	switch {
	case errors.Is(err, invitationdomain.ErrInvalidEmail),
		errors.Is(err, invitationdomain.ErrInvalidDealName),
		errors.Is(err, invitationdomain.ErrInvalidCommissionType),
		errors.Is(err, invitationdomain.ErrInvalidCommissionRate),
		errors.Is(err, invitationdomain.ErrInvalidCommissionAmount),
		errors.Is(err, invitationdomain.ErrInvalidToken),
		errors.Is(err, invitationdomain.ErrInvalidStatus),
		errors.Is(err, invitationdomain.ErrInvalidID):
		return true
	default:
		return false
	}
}

func isAffiliateValidationError(err error) bool {
	switch {
	case errors.Is(err, affiliatedomain.ErrInvalidEmail),
		errors.Is(err, affiliatedomain.ErrInvalidDealName),
		errors.Is(err, affiliatedomain.ErrInvalidID),
		errors.Is(err, affiliatedomain.ErrInvalidStatus),
		errors.Is(err, affiliatedomain.ErrInvalidName),
		errors.Is(err, affiliatedomain.ErrInvalidCommissionType),
		errors.Is(err, affiliatedomain.ErrInvalidCommissionRate),
		errors.Is(err, affiliatedomain.ErrInvalidCommissionAmount),
		errors.Is(err, affiliatedomain.ErrInvalidReferralCode),
		errors.Is(err, affiliatedomain.ErrEmptyUpdate):
		return true
	default:
		return false
	}
}

func isAmbassadorValidationError(err error) bool {
	switch {
	case errors.Is(err, ambassadordomain.ErrEmailMismatch),
		errors.Is(err, ambassadordomain.ErrInvalidGraphIDs),
		errors.Is(err, ambassadordomain.ErrTooManyGraphIDs),
		errors.Is(err, ambassadordomain.ErrInvalidGraphID),
		errors.Is(err, ambassadordomain.ErrMissingDealName),
		errors.Is(err, graph.ErrInvalidGraph):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, invitationdomain.ErrNotFound),
		errors.Is(err, affiliatedomain.ErrNotFound),
		errors.Is(err, outboxdomain.ErrNotFound),
		errors.Is(err, graph.ErrGraphNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func notFoundCode(err error) string {
	switch {
	case errors.Is(err, invitationdomain.ErrNotFound),
		errors.Is(err, affiliatedomain.ErrNotFound),
		errors.Is(err, outboxdomain.ErrNotFound),
		errors.Is(err, graph.ErrGraphNotFound):
		return rootCode(err)
	default:
		return "not_found"
	}
}

// rootCode returns the innermost sentinel text of a wrapped error.
func rootCode(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, invitationdomain.ErrInvalidDealName),
		errors.Is(err, graph.ErrInvalidGraph):
		return "invalid_deal_name"
	default:
		return rootCode(err)
	}
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "invalid_email":
		return "a valid email address is required"
	case "invalid_deal_name", "missing_deal_name":
		return "dealName must reference an existing graph"
	case "invalid_commission_type":
		return "commissionType must be percentage or fixed"
	case "invalid_commission_rate":
		return "commissionRate must be between 0 and 100"
	case "invalid_commission_amount":
		return "commissionAmount must be positive"
	case "invalid_token":
		return "token is required"
	case "email_mismatch":
		return "email does not match the invited recipient"
	case "invalid_graph_ids":
		return "graphIds is required"
	case "too_many_graph_ids":
		return "too many graphIds"
	case "empty_update":
		return "no updatable fields supplied"
	default:
		return strings.ReplaceAll(code, "_", " ")
	}
}

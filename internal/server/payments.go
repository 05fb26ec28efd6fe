package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/mealsub/internal/payment/domain"
)

type chargeRequest struct {
	SubscriptionID string          `json:"subscription_id" binding:"required"`
	PaymentMethod  string          `json:"payment_method"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
}

type refundRequest struct {
	SubscriptionID string          `json:"subscription_id" binding:"required"`
	Amount         decimal.Decimal `json:"amount"`
	Reason         string          `json:"reason"`
}

func (s *Server) ChargePayment(c *gin.Context) {
	var req chargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	subscriptionID, err := parseSnowflakeID(req.SubscriptionID)
	if err != nil {
		AbortWithError(c, newValidationError("subscription_id", "invalid_subscription_id", "invalid subscription_id"))
		return
	}

	payment, err := s.paymentSvc.Charge(c.Request.Context(), paymentdomain.ChargeRequest{
		UserID:         currentUserID(c),
		SubscriptionID: subscriptionID,
		PaymentMethod:  req.PaymentMethod,
		Amount:         req.Amount,
		Currency:       req.Currency,
	})
	if errors.Is(err, paymentdomain.ErrPaymentFailed) && payment.ID != 0 {
		// The declined attempt is part of the ledger, so the client gets it back.
		reason := ""
		if payment.FailureReason != nil {
			reason = *payment.FailureReason
		}
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error": errorPayload{Type: paymentdomain.ErrPaymentFailed.Error(), Message: reason},
			"data":  payment,
		})
		return
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": payment})
}

func (s *Server) RefundPayment(c *gin.Context) {
	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	subscriptionID, err := parseSnowflakeID(req.SubscriptionID)
	if err != nil {
		AbortWithError(c, newValidationError("subscription_id", "invalid_subscription_id", "invalid subscription_id"))
		return
	}

	payment, err := s.paymentSvc.Refund(c.Request.Context(), paymentdomain.RefundRequest{
		UserID:         currentUserID(c),
		SubscriptionID: subscriptionID,
		Amount:         req.Amount,
		Reason:         req.Reason,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": payment})
}

func (s *Server) ListPayments(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	items, err := s.paymentSvc.ListPayments(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) GetPaymentSummary(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	summary, err := s.paymentSvc.Summarize(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}

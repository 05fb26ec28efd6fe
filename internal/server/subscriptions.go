package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	menudomain "github.com/smallbiznis/mealsub/internal/menu/domain"
	subscriptiondomain "github.com/smallbiznis/mealsub/internal/subscription/domain"
	"github.com/smallbiznis/mealsub/pkg/db/pagination"
)

type createSubscriptionRequest struct {
	VendorID  string `json:"vendor_id" binding:"required"`
	MenuID    string `json:"menu_id" binding:"required"`
	MealType  string `json:"meal_type"`
	StartDate string `json:"start_date" binding:"required"`
	EndDate   string `json:"end_date" binding:"required"`
}

func (s *Server) CreateSubscription(c *gin.Context) {
	var req createSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	vendorID, err := parseSnowflakeID(req.VendorID)
	if err != nil {
		AbortWithError(c, newValidationError("vendor_id", "invalid_vendor_id", "invalid vendor_id"))
		return
	}
	menuID, err := parseSnowflakeID(req.MenuID)
	if err != nil {
		AbortWithError(c, newValidationError("menu_id", "invalid_menu_id", "invalid menu_id"))
		return
	}
	startDate, err := parseDate(req.StartDate)
	if err != nil {
		AbortWithError(c, newValidationError("start_date", "invalid_start_date", "invalid start_date"))
		return
	}
	endDate, err := parseDate(req.EndDate)
	if err != nil {
		AbortWithError(c, newValidationError("end_date", "invalid_end_date", "invalid end_date"))
		return
	}

	var mealType menudomain.MealType
	if strings.TrimSpace(req.MealType) != "" {
		mealType, err = menudomain.ParseMealType(req.MealType)
		if err != nil {
			AbortWithError(c, err)
			return
		}
	}

	resp, err := s.subscriptionSvc.Create(c.Request.Context(), subscriptiondomain.CreateRequest{
		UserID:    currentUserID(c),
		VendorID:  vendorID,
		MenuID:    menuID,
		StartDate: startDate,
		EndDate:   endDate,
		MealType:  mealType,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListSubscriptions(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Status string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.subscriptionSvc.ListOwned(c.Request.Context(), subscriptiondomain.ListRequest{
		UserID:    currentUserID(c),
		Status:    strings.TrimSpace(query.Status),
		PageToken: query.PageToken,
		PageSize:  query.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Subscriptions, "page_info": resp.PageInfo})
}

func (s *Server) GetSubscriptionByID(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	item, err := s.subscriptionSvc.FindOwned(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) CancelSubscription(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	item, err := s.subscriptionSvc.Cancel(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	bundledomain "github.com/smallbiznis/mealsub/internal/bundle/domain"
	menudomain "github.com/smallbiznis/mealsub/internal/menu/domain"
)

type bundleItemRequest struct {
	VendorID string `json:"vendor_id"`
	MenuID   string `json:"menu_id"`
}

type createBundleRequest struct {
	Items     []bundleItemRequest `json:"items"`
	MealType  string              `json:"meal_type" binding:"required"`
	StartDate string              `json:"start_date" binding:"required"`
	EndDate   string              `json:"end_date" binding:"required"`
	AddressID string              `json:"address_id" binding:"required"`
}

func (s *Server) CreateBundle(c *gin.Context) {
	var req createBundleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	items := make([]bundledomain.BundleItem, 0, len(req.Items))
	for i, item := range req.Items {
		vendorID, err := parseSnowflakeID(item.VendorID)
		if err != nil {
			field := fmt.Sprintf("items[%d].vendor_id", i)
			AbortWithError(c, newValidationError(field, "invalid_vendor_id", "invalid vendor_id"))
			return
		}
		menuID, err := parseSnowflakeID(item.MenuID)
		if err != nil {
			field := fmt.Sprintf("items[%d].menu_id", i)
			AbortWithError(c, newValidationError(field, "invalid_menu_id", "invalid menu_id"))
			return
		}
		items = append(items, bundledomain.BundleItem{VendorID: vendorID, MenuID: menuID})
	}

	mealType, err := menudomain.ParseMealType(req.MealType)
	if err != nil {
		AbortWithError(c, err)
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
	addressID, err := parseSnowflakeID(req.AddressID)
	if err != nil {
		AbortWithError(c, bundledomain.ErrInvalidAddress)
		return
	}

	resp, err := s.bundleSvc.CreateBundle(c.Request.Context(), bundledomain.CreateBundleRequest{
		UserID:    currentUserID(c),
		Items:     items,
		MealType:  mealType,
		StartDate: startDate,
		EndDate:   endDate,
		AddressID: addressID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetBundleByID(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	item, err := s.bundleSvc.FindOwned(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) CancelBundle(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	result, err := s.bundleSvc.CancelBundle(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

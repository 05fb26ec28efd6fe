package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	sweeperdomain "github.com/smallbiznis/mealsub/internal/sweeper/domain"
)

type triggerSweepRequest struct {
	// Date sweeps as of that calendar day and bypasses the once-a-day claim.
	Date string `json:"date"`
}

type sweepResponse struct {
	sweeperdomain.Report
	Errors string `json:"errors,omitempty"`
}

func (s *Server) TriggerSweep(c *gin.Context) {
	var req triggerSweepRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		AbortWithError(c, invalidRequestError())
		return
	}
	date, err := parseOptionalDate(req.Date)
	if err != nil {
		AbortWithError(c, newValidationError("date", "invalid_date", "invalid date"))
		return
	}

	var report sweeperdomain.Report
	if date != nil {
		report, err = s.sweeper.Sweep(c.Request.Context(), *date)
	} else {
		report, err = s.sweeper.RunDaily(c.Request.Context())
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := sweepResponse{Report: report}
	if report.Err != nil {
		resp.Errors = report.Err.Error()
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

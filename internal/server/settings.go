package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	settingsdomain "github.com/smallbiznis/bizdash/internal/companysettings/domain"
)

func (s *Server) GetSettings(c *gin.Context) {
	resp, err := s.settingsSvc.Get(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateSettings(c *gin.Context) {
	var req settingsdomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.settingsSvc.Update(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SetCurrency(c *gin.Context) {
	var req struct {
		Currency string `json:"currency"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.settingsSvc.SetCurrency(c.Request.Context(), req.Currency)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// FormatAmount renders ?amount= in ?currency=, or in the account's currency
// when none is given.
func (s *Server) FormatAmount(c *gin.Context) {
	var query struct {
		Amount   string `form:"amount"`
		Currency string `form:"currency"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	amount, err := strconv.ParseFloat(strings.TrimSpace(query.Amount), 64)
	if err != nil {
		AbortWithError(c, newValidationError("amount", "invalid_amount", "invalid amount"))
		return
	}

	code := strings.TrimSpace(query.Currency)
	if code == "" {
		settings, err := s.settingsSvc.Get(c.Request.Context())
		if err != nil {
			AbortWithError(c, err)
			return
		}
		code = settings.Currency
	}

	formatted, err := s.settingsSvc.FormatAmount(code, amount)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"currency": strings.ToUpper(code), "formatted": formatted}})
}

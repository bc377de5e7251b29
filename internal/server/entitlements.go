package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/bizdash/internal/accountcontext"
	entitlementdomain "github.com/smallbiznis/bizdash/internal/entitlement/domain"
	entitlementservice "github.com/smallbiznis/bizdash/internal/entitlement/service"
	plandomain "github.com/smallbiznis/bizdash/internal/plan/domain"
)

type entitlementsResponse struct {
	entitlementdomain.Entitlements
	PeriodStart time.Time `json:"period_start"`
	Degraded    bool      `json:"degraded"`
}

type changePlanRequest struct {
	Plan string `json:"plan"`
}

func (s *Server) GetEntitlements(c *gin.Context) {
	state, ok := s.state(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": toEntitlementsResponse(state)})
}

// IncrementInvoiceUsage records one created invoice when the plan still
// allows it.
func (s *Server) IncrementInvoiceUsage(c *gin.Context) {
	state, ok := s.state(c)
	if !ok {
		return
	}
	if !state.Entitlements().CanCreateInvoice {
		AbortWithError(c, ErrLimitReached)
		return
	}
	state.IncrementInvoiceUsage()
	c.JSON(http.StatusOK, gin.H{"data": toEntitlementsResponse(state)})
}

// IncrementBillUsage records one created bill when the plan still allows it.
func (s *Server) IncrementBillUsage(c *gin.Context) {
	state, ok := s.state(c)
	if !ok {
		return
	}
	if !state.Entitlements().CanCreateBill {
		AbortWithError(c, ErrLimitReached)
		return
	}
	state.IncrementBillUsage()
	c.JSON(http.StatusOK, gin.H{"data": toEntitlementsResponse(state)})
}

func (s *Server) ResetUsage(c *gin.Context) {
	state, ok := s.state(c)
	if !ok {
		return
	}
	state.ResetUsage()
	c.JSON(http.StatusOK, gin.H{"data": toEntitlementsResponse(state)})
}

func (s *Server) ChangePlan(c *gin.Context) {
	var req changePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	plan, err := plandomain.ParsePlan(strings.TrimSpace(req.Plan))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	state, ok := s.state(c)
	if !ok {
		return
	}
	if err := state.SetPlan(plan); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": toEntitlementsResponse(state)})
}

func (s *Server) state(c *gin.Context) (*entitlementservice.State, bool) {
	accountID, ok := accountcontext.AccountIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, accountcontext.ErrMissingAccount)
		return nil, false
	}
	return s.registry.Get(c.Request.Context(), accountID), true
}

func toEntitlementsResponse(state *entitlementservice.State) entitlementsResponse {
	return entitlementsResponse{
		Entitlements: state.Entitlements(),
		PeriodStart:  state.PeriodStart(),
		Degraded:     state.Degraded(),
	}
}

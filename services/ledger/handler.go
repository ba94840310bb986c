package ledger

import (
	"net/http"

	"petcare-loyalty/pkg/errutil"

	"github.com/gin-gonic/gin"
)

type applyDeltaRequest struct {
	PrincipalID string            `json:"principal_id" binding:"required"`
	Delta       int64             `json:"delta" binding:"required"`
	Reason      string            `json:"reason" binding:"required"`
	Metadata    map[string]string `json:"metadata"`
}

func (s *Service) handleApplyDelta(c *gin.Context) {
	var req applyDeltaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	result, err := s.ApplyDelta(c.Request.Context(), req.PrincipalID, req.Delta, req.Reason, req.Metadata)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Service) handleGetStatus(c *gin.Context) {
	status, err := s.GetStatus(c.Request.Context(), c.Param("principal_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, status)
}

type activityItem struct {
	ID               string `json:"id"`
	RequestedDelta   int64  `json:"requested_delta"`
	Delta            int64  `json:"delta"`
	Reason           string `json:"reason"`
	ResultingBalance int64  `json:"resulting_balance"`
	ResultingTier    string `json:"resulting_tier"`
	CreatedAt        string `json:"created_at"`
}

func (s *Service) handleListActivity(c *gin.Context) {
	limit := 0
	if v, ok := c.GetQuery("limit"); ok {
		limit = atoiOrZero(v)
	}

	entries, err := s.ListActivity(c.Request.Context(), c.Param("principal_id"), limit)
	if err != nil {
		_ = c.Error(err)
		return
	}

	items := make([]activityItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, activityItem{
			ID:               e.ID,
			RequestedDelta:   e.RequestedDelta,
			Delta:            e.Delta,
			Reason:           e.Reason,
			ResultingBalance: e.ResultingBalance,
			ResultingTier:    e.ResultingTier,
			CreatedAt:        e.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		})
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

// paymentCompletedHook is the thin glue for the payment-terminal webhook.
// Signature validation and idempotency belong to the upstream gateway; by
// the time a request lands here it is trusted.
type paymentCompletedHook struct {
	PrincipalID string `json:"principal_id" binding:"required"`
	Points      int64  `json:"points" binding:"required,gt=0"`
	OrderID     string `json:"order_id"`
}

func (s *Service) handlePaymentCompleted(c *gin.Context) {
	var req paymentCompletedHook
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	result, err := s.ApplyDelta(c.Request.Context(), req.PrincipalID, req.Points, ReasonPurchase, map[string]string{
		"order_id": req.OrderID,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func atoiOrZero(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}

package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/tradeyard/riskcore/internal/logging"
	"github.com/tradeyard/riskcore/internal/outcomes"
	"github.com/tradeyard/riskcore/internal/risk"
	"github.com/tradeyard/riskcore/internal/training"
)

// -----------------------------------------------------------------------------
// Assessment
// -----------------------------------------------------------------------------

type assessRequest struct {
	PartnerID      string          `json:"partnerId" binding:"required"`
	CounterpartyID string          `json:"counterpartyId"`
	Side           string          `json:"side" binding:"required"`
	CommodityID    string          `json:"commodityId" binding:"required"`
	Amount         decimal.Decimal `json:"amount"`
}

// assessHandler handles POST /v1/assess
func (s *Server) assessHandler(c *gin.Context) {
	var req assessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body: " + err.Error(),
		})
		return
	}

	side := risk.Side(req.Side)
	if side != risk.SideBuy && side != risk.SideSell {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_side",
			"message": "side must be BUY or SELL",
		})
		return
	}
	if req.Amount.Sign() <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_amount",
			"message": "amount must be a positive decimal",
		})
		return
	}

	subject := &risk.Subject{
		PartnerID:      req.PartnerID,
		CounterpartyID: req.CounterpartyID,
		Side:           side,
		CommodityID:    req.CommodityID,
		Amount:         req.Amount,
	}

	// Bound the whole assessment; a predictor that overruns the deadline
	// degrades to a rules-only result rather than failing the request.
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	result := s.engine.Assess(ctx, subject)
	c.JSON(http.StatusOK, result)
}

// -----------------------------------------------------------------------------
// Outcomes
// -----------------------------------------------------------------------------

type outcomeRequest struct {
	PartnerID       string          `json:"partnerId" binding:"required"`
	CommodityID     string          `json:"commodityId"`
	Amount          decimal.Decimal `json:"amount"`
	PredictedScore  float64         `json:"predictedScore"`
	PredictedStatus string          `json:"predictedStatus" binding:"required"`
	ActualOutcome   string          `json:"actualOutcome" binding:"required"`
	PredictionDate  time.Time       `json:"predictionDate"`
	OutcomeDate     time.Time       `json:"outcomeDate"`
}

// recordOutcomeHandler handles POST /v1/outcomes
func (s *Server) recordOutcomeHandler(c *gin.Context) {
	var req outcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body: " + err.Error(),
		})
		return
	}

	rec := &outcomes.Record{
		PartnerID:       req.PartnerID,
		CommodityID:     req.CommodityID,
		Amount:          req.Amount,
		PredictedScore:  req.PredictedScore,
		PredictedStatus: risk.Status(req.PredictedStatus),
		Actual:          outcomes.Outcome(req.ActualOutcome),
		PredictionDate:  req.PredictionDate,
		OutcomeDate:     req.OutcomeDate,
	}
	if rec.OutcomeDate.IsZero() {
		rec.OutcomeDate = time.Now().UTC()
	}

	if err := s.engine.RecordOutcome(c.Request.Context(), rec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_outcome",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, rec)
}

// -----------------------------------------------------------------------------
// Engine administration
// -----------------------------------------------------------------------------

// breakerStatusHandler handles GET /v1/engine/breaker
func (s *Server) breakerStatusHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.BreakerStatus())
}

// breakerResetHandler handles POST /v1/engine/breaker/reset
func (s *Server) breakerResetHandler(c *gin.Context) {
	s.engine.ResetBreaker()
	logging.L(c.Request.Context()).Info("circuit breaker manually reset")
	c.JSON(http.StatusOK, s.engine.BreakerStatus())
}

type breakerUpdateRequest struct {
	FailureThreshold int   `json:"failureThreshold" binding:"required"`
	TimeoutSeconds   int64 `json:"timeoutSeconds" binding:"required"`
}

// breakerUpdateHandler handles PUT /v1/engine/breaker
func (s *Server) breakerUpdateHandler(c *gin.Context) {
	var req breakerUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body: " + err.Error(),
		})
		return
	}
	if req.FailureThreshold <= 0 || req.TimeoutSeconds <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_params",
			"message": "failureThreshold and timeoutSeconds must be positive",
		})
		return
	}

	s.engine.SetBreakerParams(req.FailureThreshold, time.Duration(req.TimeoutSeconds)*time.Second)
	c.JSON(http.StatusOK, s.engine.BreakerStatus())
}

type weightsUpdateRequest struct {
	RuleWeight float64  `json:"ruleWeight"`
	MLWeight   float64  `json:"mlWeight"`
	WarnFloor  *float64 `json:"warnFloor"`
	PassFloor  *float64 `json:"passFloor"`
}

// weightsUpdateHandler handles PUT /v1/engine/weights
func (s *Server) weightsUpdateHandler(c *gin.Context) {
	var req weightsUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body: " + err.Error(),
		})
		return
	}

	if err := s.engine.SetWeights(req.RuleWeight, req.MLWeight); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_weights",
			"message": err.Error(),
		})
		return
	}
	if req.WarnFloor != nil && req.PassFloor != nil {
		if err := s.engine.SetThresholds(*req.WarnFloor, *req.PassFloor); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_thresholds",
				"message": err.Error(),
			})
			return
		}
	}

	logging.L(c.Request.Context()).Info("fusion config updated",
		"ruleWeight", req.RuleWeight, "mlWeight", req.MLWeight)
	c.JSON(http.StatusOK, s.engine.Weights())
}

// snapshotHandler handles GET /v1/engine/snapshot
func (s *Server) snapshotHandler(c *gin.Context) {
	snap := s.scorer.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"version":   snap.Version,
		"trainedAt": snap.TrainedAt,
		"accuracy":  snap.Accuracy,
	})
}

type retrainRequest struct {
	Full bool `json:"full"`
}

// retrainHandler handles POST /v1/engine/retrain
func (s *Server) retrainHandler(c *gin.Context) {
	var req retrainRequest
	// Body is optional; default is a light refresh.
	_ = c.ShouldBindJSON(&req)

	err := s.scheduler.RetrainNow(c.Request.Context(), req.Full)
	switch {
	case err == nil:
		snap := s.scorer.Snapshot()
		c.JSON(http.StatusOK, gin.H{
			"status":  "retrained",
			"version": snap.Version,
		})
	case errors.Is(err, training.ErrInsufficientData):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "insufficient_data",
			"message": err.Error(),
		})
	case errors.Is(err, training.ErrAccuracyRegression):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "accuracy_regression",
			"message": err.Error(),
		})
	default:
		logging.L(c.Request.Context()).Error("retraining failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Retraining failed",
		})
	}
}

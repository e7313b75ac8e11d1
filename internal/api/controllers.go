package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/seokjunHwang/Quant/internal/balance"
	"github.com/seokjunHwang/Quant/internal/engine"
	"github.com/seokjunHwang/Quant/internal/reconciliation"
	"github.com/seokjunHwang/Quant/internal/signal"
)

type listQuery struct {
	Limit int `form:"limit"`
}

func (q *listQuery) normalize() {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	if q.Limit > 500 {
		q.Limit = 500
	}
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

// Queries

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.Engine.Status(c.Request.Context()))
}

func (s *Server) getPositions(c *gin.Context) {
	c.JSON(http.StatusOK, s.Engine.Positions())
}

func (s *Server) getTrades(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	q.normalize()

	trades, err := s.Engine.Trades(c.Request.Context(), q.Limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, trades)
}

func (s *Server) getAudit(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	q.normalize()

	rows, err := s.Engine.FailedOrders(c.Request.Context(), q.Limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (s *Server) getOverrides(c *gin.Context) {
	c.JSON(http.StatusOK, s.Engine.Overrides())
}

func (s *Server) deleteOverride(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	if !s.Engine.ClearOverride(symbol) {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "no manual override for "+symbol)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cleared", "symbol": symbol})
}

func (s *Server) getParams(c *gin.Context) {
	c.JSON(http.StatusOK, s.Engine.Params())
}

func (s *Server) updateParams(c *gin.Context) {
	var req engine.ParamsUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	p, err := s.Engine.SetParams(req)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_PARAMETERS", err.Error())
		return
	}
	s.log.Info().Str("user", CurrentOperator(c)).Str("policy", p.Policy.Name).Msg("parameters changed via api")
	c.JSON(http.StatusOK, p)
}

func (s *Server) syncCapital(c *gin.Context) {
	p, snap, err := s.Engine.SyncCapital(c.Request.Context())
	switch {
	case errors.Is(err, engine.ErrFixedCapital):
		respondError(c, http.StatusConflict, "FIXED_CAPITAL", err.Error())
	case errors.Is(err, balance.ErrInsufficient):
		respondError(c, http.StatusUnprocessableEntity, "INSUFFICIENT_BALANCE", err.Error())
	case err != nil:
		respondError(c, http.StatusBadGateway, "BALANCE_UNAVAILABLE", err.Error())
	default:
		s.log.Info().Str("user", CurrentOperator(c)).Float64("total_capital", p.TotalCapital).Msg("capital synced via api")
		c.JSON(http.StatusOK, gin.H{"params": p, "balance": snap})
	}
}

// Actions

func (s *Server) startAutoTrade(c *gin.Context) {
	err := s.Engine.Start(c.Request.Context())
	switch {
	case errors.Is(err, engine.ErrAlreadyRunning):
		respondError(c, http.StatusConflict, "ALREADY_RUNNING", err.Error())
	case err != nil:
		respondError(c, http.StatusInternalServerError, "ENGINE_ERROR", err.Error())
	default:
		c.JSON(http.StatusOK, gin.H{"status": "started"})
	}
}

func (s *Server) stopAutoTrade(c *gin.Context) {
	err := s.Engine.Stop()
	switch {
	case errors.Is(err, engine.ErrNotRunning):
		respondError(c, http.StatusConflict, "NOT_RUNNING", err.Error())
	case err != nil:
		respondError(c, http.StatusInternalServerError, "ENGINE_ERROR", err.Error())
	default:
		c.JSON(http.StatusOK, gin.H{"status": "stopped"})
	}
}

func (s *Server) reconcile(c *gin.Context) {
	rep, err := s.Engine.TriggerRescan(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ENGINE_ERROR", err.Error())
		return
	}
	if rep == nil {
		c.JSON(http.StatusAccepted, gin.H{"status": "coalesced"})
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (s *Server) executeLatestSignal(c *gin.Context) {
	rep, sig, err := s.Engine.ExecuteLatestSignal(c.Request.Context())
	switch {
	case errors.Is(err, signal.ErrNoSignal):
		respondError(c, http.StatusNotFound, "NO_SIGNAL", err.Error())
	case err != nil:
		respondError(c, http.StatusInternalServerError, "ENGINE_ERROR", err.Error())
	case rep == nil:
		c.JSON(http.StatusAccepted, gin.H{"status": "coalesced", "signal": sig})
	default:
		s.log.Info().Str("user", CurrentOperator(c)).Int64("signal_id", sig.ID).Msg("latest signal executed via api")
		c.JSON(http.StatusOK, gin.H{"signal": sig, "report": rep})
	}
}

func (s *Server) closePosition(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	err := s.Engine.ManualClose(c.Request.Context(), symbol)
	switch {
	case errors.Is(err, reconciliation.ErrNotHeld):
		respondError(c, http.StatusNotFound, "NOT_HELD", err.Error())
	case errors.Is(err, reconciliation.ErrCloseFailed):
		respondError(c, http.StatusBadGateway, "CLOSE_FAILED", err.Error())
	case err != nil:
		respondError(c, http.StatusInternalServerError, "ENGINE_ERROR", err.Error())
	default:
		s.log.Info().Str("user", CurrentOperator(c)).Str("symbol", symbol).Msg("manual close via api")
		c.JSON(http.StatusOK, gin.H{"status": "closed", "symbol": symbol})
	}
}

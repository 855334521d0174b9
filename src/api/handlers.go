package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stake-plus/dao-monitor/src/gov"
	"github.com/stake-plus/dao-monitor/src/scanner"
	"github.com/stake-plus/dao-monitor/src/store"
	"go.uber.org/zap"
)

// StatusSource exposes the most recent pass.
type StatusSource interface {
	LastReport() (scanner.Report, bool)
}

type handlers struct {
	store   store.Store
	status  StatusSource
	started time.Time
	logger  *zap.Logger
}

func (h handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h handlers) lastReport(c *gin.Context) {
	resp := gin.H{"started_at": h.started, "last_report": nil}
	if h.status != nil {
		if report, ok := h.status.LastReport(); ok {
			resp["last_report"] = report
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h handlers) listNotified(c *gin.Context) {
	category, ok := gov.ParseCategory(c.Param("category"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"err": "unknown category"})
		return
	}
	ids, err := h.store.List(c.Request.Context(), category)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	c.JSON(http.StatusOK, gin.H{"category": category, "vote_ids": ids})
}

func (h handlers) markNotified(c *gin.Context) {
	category, ok := gov.ParseCategory(c.Param("category"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"err": "unknown category"})
		return
	}
	voteID, err := strconv.ParseInt(c.Param("voteId"), 10, 64)
	if err != nil || voteID < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"err": "invalid vote id"})
		return
	}

	ctx := c.Request.Context()
	already, err := h.store.IsNotified(ctx, voteID, category)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	if !already {
		if err := h.store.MarkNotified(ctx, voteID, category); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
			return
		}
	}

	h.logger.Info("proposal marked notified by operator",
		zap.String("subject", c.GetString(subjectKey)),
		zap.Int64("vote_id", voteID),
		zap.String("category", string(category)),
		zap.Bool("already", already),
	)
	c.JSON(http.StatusOK, gin.H{"vote_id": voteID, "category": category, "already": already})
}

package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"deal_aggregator/internal/domain"
	"deal_aggregator/internal/match"
)

type dealsResponse struct {
	Success   bool              `json:"success"`
	Count     int               `json:"count"`
	Deals     []domain.Deal     `json:"deals"`
	Timestamp *time.Time        `json:"timestamp,omitempty"`
	Degraded  bool              `json:"degraded,omitempty"`
	Debug     *domain.DebugInfo `json:"debug,omitempty"`
	Error     string            `json:"error,omitempty"`
}

func errorResponse(msg string) dealsResponse {
	return dealsResponse{Success: false, Count: 0, Deals: []domain.Deal{}, Error: msg}
}

func queryFlag(c *gin.Context, name string) bool {
	switch strings.ToLower(c.Query(name)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func (h *Handler) getDeals(c *gin.Context) {
	force := queryFlag(c, "refresh")
	if force && !h.refresh.Allow() {
		h.logger.Info("forced refresh rate limited, serving cached result")
		force = false
	}

	result, err := h.deals.Get(c.Request.Context(), force)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, errorResponse(err.Error()))
		return
	}

	resp := dealsResponse{
		Success:   result.Success,
		Count:     result.Count,
		Deals:     result.Deals,
		Timestamp: &result.Timestamp,
		Degraded:  result.Degraded,
	}
	if resp.Deals == nil {
		resp.Deals = []domain.Deal{}
	}
	if queryFlag(c, "debug") {
		debug := result.Debug
		resp.Debug = &debug
	}

	c.JSON(http.StatusOK, resp)
}

type searchResponse struct {
	Success bool          `json:"success"`
	Query   string        `json:"query"`
	Count   int           `json:"count"`
	Matches []match.Match `json:"matches"`
}

func (h *Handler) searchDeals(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "query parameter q is required"})
		return
	}

	limit := h.cfg.SearchLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	result, err := h.deals.Get(c.Request.Context(), false)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	matches := match.Rank(query, result.Deals, limit)
	if matches == nil {
		matches = []match.Match{}
	}

	c.JSON(http.StatusOK, searchResponse{
		Success: true,
		Query:   query,
		Count:   len(matches),
		Matches: matches,
	})
}

type cacheStatus struct {
	GeneratedAt *time.Time `json:"generatedAt"`
	ExpiresAt   *time.Time `json:"expiresAt"`
	Fresh       bool       `json:"fresh"`
	Count       int        `json:"count"`
	Degraded    bool       `json:"degraded"`
}

func (h *Handler) health(c *gin.Context) {
	status := cacheStatus{}
	if entry, ok := h.deals.Peek(c.Request.Context()); ok {
		generated, expires := entry.GeneratedAt, entry.ExpiresAt()
		status.GeneratedAt = &generated
		status.ExpiresAt = &expires
		status.Fresh = h.deals.Fresh(entry)
		if entry.Result != nil {
			status.Count = entry.Result.Count
			status.Degraded = entry.Result.Degraded
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": h.now().UTC(),
		"cache":     status,
	})
}

func (h *Handler) listRuns(c *gin.Context) {
	limit := h.cfg.RunsLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n < limit {
			limit = n
		}
	}

	runs, err := h.runs.ListRecent(c.Request.Context(), limit)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	if runs == nil {
		runs = []domain.AggregationRun{}
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(runs), "runs": runs})
}

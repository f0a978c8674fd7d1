// Package handler exposes the read-only admin dashboard API: aggregate
// stats, recent actions and errors, source freshness and a live action feed.
package handler

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"time"

	"casguard/backend/internal/config"
	"casguard/backend/internal/feed"
	"casguard/backend/internal/models"

	"github.com/gin-gonic/gin"
)

// Store is the slice of storage the dashboard reads.
type Store interface {
	ActionStatsSince(chatID int64, since time.Time) (models.ActionStats, error)
	TimeToActionSince(since time.Time) ([]float64, error)
	RecentActions(limit int) ([]models.ActionLogEntry, error)
	RecentErrors(limit int) ([]models.ErrorLogEntry, error)
	ListChats() ([]models.ChatInfo, error)
	ListSourceUpdates() ([]models.SourceUpdate, error)
}

// IndexSize reports the local blacklist size.
type IndexSize interface {
	Size() int
}

// Handler serves the dashboard endpoints.
type Handler struct {
	Store Store
	Hub   *feed.Hub
	Index IndexSize
	Cfg   *config.Config

	now func() time.Time
}

// NewHandler Constructor
func NewHandler(store Store, hub *feed.Hub, index IndexSize, cfg *config.Config) *Handler {
	return &Handler{Store: store, Hub: hub, Index: index, Cfg: cfg, now: time.Now}
}

// RegisterRoutes wires the dashboard routes onto the engine.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", h.Healthz)
	r.POST("/api/login", h.Login)

	api := r.Group("/api", h.AuthMiddleware())
	api.GET("/overview", h.Overview)
	api.GET("/chats", h.Chats)
	api.GET("/chats/:id/stats", h.ChatStats)
	api.GET("/actions", h.Actions)
	api.GET("/errors", h.Errors)
	api.GET("/sources", h.Sources)
	api.GET("/ws", h.ServeWebSocket)
}

// Healthz is the unauthenticated liveness probe.
func (h *Handler) Healthz(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// statsWindows aggregates the three reporting windows for one chat
// (chatID 0 = all chats).
func (h *Handler) statsWindows(chatID int64) (gin.H, error) {
	now := h.now()
	windows := gin.H{}
	for label, d := range map[string]time.Duration{
		"24h": 24 * time.Hour,
		"7d":  7 * 24 * time.Hour,
		"30d": 30 * 24 * time.Hour,
	} {
		stats, err := h.Store.ActionStatsSince(chatID, now.Add(-d))
		if err != nil {
			return nil, err
		}
		windows[label] = stats
	}
	return windows, nil
}

// Overview returns cross-chat stats, time-to-action percentiles, index size
// and source freshness.
func (h *Handler) Overview(c *gin.Context) {
	windows, err := h.statsWindows(0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load stats"})
		return
	}
	deltas, err := h.Store.TimeToActionSince(h.now().Add(-7 * 24 * time.Hour))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load stats"})
		return
	}
	sources, err := h.Store.ListSourceUpdates()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load sources"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"stats":          windows,
		"time_to_action": timeToAction(deltas),
		"index_size":     h.Index.Size(),
		"sources":        sources,
	})
}

// timeToAction summarizes first-sighting-to-action delays over the 7d window.
// Percentiles are null when no action ran in the window.
func timeToAction(deltas []float64) gin.H {
	out := gin.H{"window": "7d", "samples": len(deltas)}
	for _, p := range []float64{50, 95} {
		key := fmt.Sprintf("p%.0f_seconds", p)
		if v, ok := percentile(deltas, p); ok {
			out[key] = v
		} else {
			out[key] = nil
		}
	}
	return out
}

// percentile is the nearest-rank percentile of values; ok is false when
// values is empty.
func percentile(values []float64, pct float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	k := int(math.Round(pct / 100 * float64(len(sorted)-1)))
	if k < 0 {
		k = 0
	}
	if k > len(sorted)-1 {
		k = len(sorted) - 1
	}
	return sorted[k], true
}

// Chats lists the chats the bot has seen.
func (h *Handler) Chats(c *gin.Context) {
	chats, err := h.Store.ListChats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load chats"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// ChatStats returns the reporting windows for one chat.
func (h *Handler) ChatStats(c *gin.Context) {
	chatID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid chat id"})
		return
	}
	windows, err := h.statsWindows(chatID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load stats"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat_id": chatID, "stats": windows})
}

// Actions returns the most recent action-log entries.
func (h *Handler) Actions(c *gin.Context) {
	entries, err := h.Store.RecentActions(limitParam(c, 25))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load actions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": entries})
}

// Errors returns the most recent error-log entries.
func (h *Handler) Errors(c *gin.Context) {
	entries, err := h.Store.RecentErrors(limitParam(c, 20))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load errors"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"errors": entries})
}

// Sources returns the per-source refresh bookkeeping.
func (h *Handler) Sources(c *gin.Context) {
	sources, err := h.Store.ListSourceUpdates()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load sources"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sources": sources, "index_size": h.Index.Size()})
}

func limitParam(c *gin.Context, def int) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(def)))
	if err != nil || limit <= 0 || limit > 500 {
		return def
	}
	return limit
}

package index

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/agentscan/internal/usdcfmt"
)

// recentFeedbackLimit bounds the feedback list embedded in agent detail.
const recentFeedbackLimit = 20

// Handler serves the read API over a Store.
type Handler struct {
	store     Store
	chainName func(int64) string
	logger    *slog.Logger
}

// NewHandler creates a read API handler. chainName maps chain ids to
// display labels and may be nil.
func NewHandler(store Store, chainName func(int64) string, logger *slog.Logger) *Handler {
	if chainName == nil {
		chainName = func(id int64) string { return strconv.FormatInt(id, 10) }
	}
	return &Handler{store: store, chainName: chainName, logger: logger}
}

// RegisterRoutes mounts the read API under the given group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/agents", h.listAgents)
	r.GET("/agents/:chainId/:agentId", h.getAgent)
	r.GET("/activity", h.listActivity)
	r.GET("/stats", h.globalStats)
}

// agentView is an agent joined with its derived aggregates.
type agentView struct {
	*Agent
	Stats  *AgentStats `json:"stats,omitempty"`
	Volume *volumeView `json:"volume,omitempty"`
}

type volumeView struct {
	TotalVolume  string  `json:"totalVolume"`
	TotalUSD     float64 `json:"totalUsd"`
	TxCount      int64   `json:"txCount"`
	UniquePayers int64   `json:"uniquePayers"`
	LastPayment  int64   `json:"lastPayment,omitempty"`
}

func newVolumeView(v *AgentVolume) *volumeView {
	return &volumeView{
		TotalVolume:  usdcfmt.Units(v.TotalVolume),
		TotalUSD:     usdcfmt.USD(v.TotalVolume),
		TxCount:      v.TxCount,
		UniquePayers: v.UniquePayers,
		LastPayment:  v.LastPayment,
	}
}

// GET /v1/agents
func (h *Handler) listAgents(c *gin.Context) {
	q := AgentQuery{
		Limit:  intQuery(c, "limit", 50),
		Offset: intQuery(c, "offset", 0),
	}
	if raw := c.Query("chainId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chainId"})
			return
		}
		q.ChainID = &id
	}

	agents, total, err := h.store.ListAgents(c.Request.Context(), q)
	if err != nil {
		h.logger.Error("list agents failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	views := make([]agentView, 0, len(agents))
	for _, a := range agents {
		views = append(views, agentView{
			Agent:  a,
			Stats:  h.statsFor(c, a.ID),
			Volume: h.volumeFor(c, a.ID),
		})
	}

	limit, offset := normalizePage(q.Limit, q.Offset)
	c.JSON(http.StatusOK, gin.H{
		"agents": views,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// GET /v1/agents/:chainId/:agentId
func (h *Handler) getAgent(c *gin.Context) {
	chainID, err := strconv.ParseInt(c.Param("chainId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chainId"})
		return
	}
	agentID, err := strconv.ParseUint(c.Param("agentId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid agentId"})
		return
	}
	key := AgentKey(chainID, agentID)

	agent, err := h.store.GetAgent(c.Request.Context(), key)
	if errors.Is(err, ErrAgentNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
		return
	}
	if err != nil {
		h.logger.Error("get agent failed", "key", key, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	recent, err := h.store.ListFeedback(c.Request.Context(), key, recentFeedbackLimit)
	if err != nil {
		h.logger.Error("list feedback failed", "key", key, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	byTag, err := h.store.FeedbackByTag(c.Request.Context(), key)
	if err != nil {
		h.logger.Error("feedback by tag failed", "key", key, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"agent":          agentView{Agent: agent, Stats: h.statsFor(c, key), Volume: h.volumeFor(c, key)},
		"recentFeedback": recent,
		"feedbackByTag":  byTag,
		"chainName":      h.chainName(chainID),
	})
}

// GET /v1/activity
func (h *Handler) listActivity(c *gin.Context) {
	q := ActivityQuery{
		Limit:  intQuery(c, "limit", 50),
		Offset: intQuery(c, "offset", 0),
	}
	if raw := c.Query("type"); raw != "" {
		t := ActivityType(raw)
		switch t {
		case ActivityRegistered, ActivityTransfer, ActivityFeedback, ActivityPayment:
			q.Type = t
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid type"})
			return
		}
	}
	if raw := c.Query("chainId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chainId"})
			return
		}
		q.ChainID = &id
	}

	entries, err := h.store.ListActivity(c.Request.Context(), q)
	if err != nil {
		h.logger.Error("list activity failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"activity": entries})
}

// GET /v1/stats
func (h *Handler) globalStats(c *gin.Context) {
	since := time.Now().Add(-24 * time.Hour).Unix()

	gs, err := h.store.GlobalStats(c.Request.Context(), since)
	if err != nil {
		h.logger.Error("global stats failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	for i := range gs.Chains {
		gs.Chains[i].Name = h.chainName(gs.Chains[i].ChainID)
	}

	c.JSON(http.StatusOK, gin.H{
		"totalAgents":   gs.TotalAgents,
		"totalFeedback": gs.TotalFeedback,
		"totalPayments": gs.TotalPayments,
		"totalVolume":   usdcfmt.Units(gs.TotalVolume),
		"totalUsd":      usdcfmt.USD(gs.TotalVolume),
		"x402Agents":    gs.X402Agents,
		"agentsToday":   gs.AgentsSince,
		"chains":        gs.Chains,
	})
}

// statsFor fetches an agent's reputation aggregate, tolerating absence.
func (h *Handler) statsFor(c *gin.Context, key string) *AgentStats {
	st, err := h.store.GetStats(c.Request.Context(), key)
	if err != nil {
		if !errors.Is(err, ErrStatsNotFound) {
			h.logger.Warn("get stats failed", "key", key, "error", err)
		}
		return nil
	}
	return st
}

func (h *Handler) volumeFor(c *gin.Context, key string) *volumeView {
	v, err := h.store.GetVolume(c.Request.Context(), key)
	if err != nil {
		if !errors.Is(err, ErrVolumeNotFound) {
			h.logger.Warn("get volume failed", "key", key, "error", err)
		}
		return nil
	}
	return newVolumeView(v)
}

func intQuery(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

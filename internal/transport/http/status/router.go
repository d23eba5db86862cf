package statushttp

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"smartbot/internal/brain"
	"smartbot/internal/engine"
	"smartbot/internal/logger"
	"smartbot/internal/market"
	"smartbot/internal/risk"
	"smartbot/internal/store"
)

const maxTradeLimit = 500

// Router 暴露持仓、风控、brain 与周期报告的查询接口。
type Router struct {
	risk    *risk.Manager
	brain   *brain.Brain
	cycles  CycleSource
	journal store.Journal
}

// Register 将 /api 路由挂载到给定分组下。
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/positions", r.handlePositions)
	group.GET("/positions/:ticker", r.handlePosition)
	group.GET("/risk", r.handleRisk)
	group.GET("/brain", r.handleBrain)
	group.GET("/brain/insights", r.handleInsights)
	group.GET("/cycles/last", r.handleLastCycle)
	group.GET("/trades", r.handleTrades)
}

func (r *Router) handlePositions(c *gin.Context) {
	positions := r.risk.Positions()
	c.JSON(http.StatusOK, gin.H{"positions": positions, "count": len(positions)})
}

func (r *Router) handlePosition(c *gin.Context) {
	ticker := market.BaseTicker(strings.ToUpper(strings.TrimSpace(c.Param("ticker"))))
	pos, ok := r.risk.Position(ticker)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "position not found"})
		return
	}
	c.JSON(http.StatusOK, pos)
}

// riskView is the account-wide risk snapshot.
type riskView struct {
	State          risk.State `json:"state"`
	DynamicRisk    float64    `json:"dynamic_risk"`
	CircuitBreaker bool       `json:"circuit_breaker"`
	MaxDailyLoss   float64    `json:"max_daily_loss"`
	OpenPositions  int        `json:"open_positions"`
	MaxPositions   int        `json:"max_positions"`
}

func (r *Router) handleRisk(c *gin.Context) {
	cfg := r.risk.Config()
	dyn := r.risk.DynamicRisk()
	c.JSON(http.StatusOK, riskView{
		State:          r.risk.State(),
		DynamicRisk:    dyn,
		CircuitBreaker: dyn == 0,
		MaxDailyLoss:   cfg.MaxDailyLoss,
		OpenPositions:  len(r.risk.Positions()),
		MaxPositions:   cfg.MaxPositions,
	})
}

func (r *Router) handleBrain(c *gin.Context) {
	if t := strings.TrimSpace(c.Query("ticker")); t != "" {
		stats, ok := r.brain.Ticker(strings.ToUpper(t))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no trades for ticker"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ticker": strings.ToUpper(t), "stats": stats, "win_rate": stats.WinRate()})
		return
	}
	c.JSON(http.StatusOK, r.brain.Snapshot())
}

func (r *Router) handleInsights(c *gin.Context) {
	c.String(http.StatusOK, r.brain.Insights())
}

func (r *Router) handleLastCycle(c *gin.Context) {
	res, ok := r.cycles.LastCycle()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no cycle has completed yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"cycle":       res,
		"duration_ms": res.Duration().Milliseconds(),
		"buys":        res.Count(engine.DecisionBuy),
		"sells":       res.Count(engine.DecisionSell) + res.Count(engine.DecisionPartial),
	})
}

func (r *Router) handleTrades(c *gin.Context) {
	if r.journal == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "交易日志未启用"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit <= 0 {
		limit = 100
	}
	if limit > maxTradeLimit {
		limit = maxTradeLimit
	}
	q := store.TradeQuery{
		Ticker:  strings.ToUpper(strings.TrimSpace(c.Query("ticker"))),
		Actions: c.QueryArray("action"),
		Limit:   limit,
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	trades, err := r.journal.ListTrades(ctx, q)
	if err != nil {
		logger.Errorf("[api] trades list failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades, "count": len(trades)})
}

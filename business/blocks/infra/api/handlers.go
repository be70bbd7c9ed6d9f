// Package api exposes the block window over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fd1az/blockviz/business/blocks/app"
	"github.com/fd1az/blockviz/business/blocks/domain"
	"github.com/fd1az/blockviz/internal/apperror"
	"github.com/fd1az/blockviz/internal/logger"
)

const (
	requestTimeout      = 30 * time.Second
	defaultHistoryCount = 50
	maxHistoryCount     = 200
)

// StateResponse is the scalar window state.
type StateResponse struct {
	TipNumber           string `json:"tipNumber"`
	CurrentPosition     string `json:"currentPosition"`
	IsLiveMode          bool   `json:"isLiveMode"`
	IsLoadingHistorical bool   `json:"isLoadingHistorical"`
	BlockCount          int    `json:"blockCount"`
	FeedStatus          string `json:"feedStatus"`
}

// L1GroupResponse is one L1 group of visible blocks.
type L1GroupResponse struct {
	L1Number    string               `json:"l1Number,omitempty"`
	L1Hash      string               `json:"l1Hash,omitempty"`
	Known       bool                 `json:"known"`
	MiddleBlock string               `json:"middleBlock,omitempty"`
	L2Blocks    []domain.StoredBlock `json:"l2Blocks"`
}

// L1BlockResponse is an L1 block summary.
type L1BlockResponse struct {
	Number           string `json:"number"`
	Hash             string `json:"hash"`
	Timestamp        string `json:"timestamp"`
	TransactionCount uint64 `json:"transactionCount"`
}

type liveRequest struct {
	Live *bool `json:"live" binding:"required"`
}

// Handlers serves the block window API.
type Handlers struct {
	svc *app.BlockService
	log logger.LoggerInterface
}

// NewHandlers creates the API handlers.
func NewHandlers(svc *app.BlockService, log logger.LoggerInterface) *Handlers {
	return &Handlers{svc: svc, log: log}
}

// Register mounts the routes under /api.
func (h *Handlers) Register(r gin.IRouter) {
	g := r.Group("/api")
	g.GET("/ping", h.Ping)
	g.GET("/state", h.State)
	g.GET("/blocks/visible", h.VisibleBlocks)
	g.GET("/blocks/:number", h.Block)
	g.DELETE("/blocks", h.ClearBlocks)
	g.POST("/blocks/history", h.LoadHistorical)
	g.POST("/position/:number", h.SetPosition)
	g.GET("/l1groups", h.L1Groups)
	g.GET("/l1/:number", h.L1Block)
	g.POST("/navigate/:number", h.Navigate)
	g.POST("/navigate/relative/:dir", h.NavigateRelative)
	g.POST("/navigate/l1/:number", h.NavigateToL1)
	g.POST("/live", h.SetLive)
	g.POST("/reset", h.Reset)
}

// Ping returns the current L2 head.
func (h *Handlers) Ping(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	n, err := h.svc.Ping(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"blockNumber": strconv.FormatUint(n, 10)})
}

// State returns tip, position and mode.
func (h *Handlers) State(c *gin.Context) {
	st := h.svc.Store().State()
	c.JSON(http.StatusOK, StateResponse{
		TipNumber:           strconv.FormatUint(st.TipNumber, 10),
		CurrentPosition:     strconv.FormatUint(st.CurrentPosition, 10),
		IsLiveMode:          st.IsLiveMode,
		IsLoadingHistorical: st.IsLoadingHistorical,
		BlockCount:          st.BlockCount,
		FeedStatus:          string(h.svc.FeedStatus()),
	})
}

// VisibleBlocks returns the current display window in storage form.
func (h *Handlers) VisibleBlocks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"blocks": h.svc.Store().GetVisibleBlocks()})
}

// Block fetches one block from the chain, bypassing the window.
func (h *Handlers) Block(c *gin.Context) {
	n, ok := parseNumber(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	b, err := h.svc.Block(ctx, n)
	if err != nil {
		writeError(c, err)
		return
	}
	stored, err := domain.ToStored(*b)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stored)
}

// L1Groups groups the visible blocks by L1 origin.
func (h *Handlers) L1Groups(c *gin.Context) {
	groups := h.svc.L1Groups()
	out := make([]L1GroupResponse, 0, len(groups))
	for _, g := range groups {
		resp := L1GroupResponse{Known: g.Known, L1Hash: g.L1Hash, L2Blocks: g.L2Blocks}
		if g.Known {
			resp.L1Number = strconv.FormatUint(g.L1Number, 10)
		}
		if mid, ok := app.MiddleBlock(g); ok {
			resp.MiddleBlock = strconv.FormatUint(mid, 10)
		}
		out = append(out, resp)
	}
	c.JSON(http.StatusOK, gin.H{"groups": out})
}

// L1Block returns an L1 block summary.
func (h *Handlers) L1Block(c *gin.Context) {
	n, ok := parseNumber(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	b, err := h.svc.L1Block(ctx, n)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, L1BlockResponse{
		Number:           strconv.FormatUint(b.Number, 10),
		Hash:             b.Hash.Hex(),
		Timestamp:        strconv.FormatUint(b.TimestampMs, 10),
		TransactionCount: b.TxCount,
	})
}

// Navigate moves the window to an absolute block number.
func (h *Handlers) Navigate(c *gin.Context) {
	raw := c.Param("number")
	target, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(c, apperror.Validation(apperror.CodeInvalidArgument, "invalid block number "+strconv.Quote(raw)))
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	if err := h.svc.Store().NavigateToBlock(ctx, target); err != nil {
		writeError(c, err)
		return
	}
	h.State(c)
}

// NavigateRelative steps one block toward newer (prev) or older (next).
func (h *Handlers) NavigateRelative(c *gin.Context) {
	dir, err := domain.ParseDirection(c.Param("dir"))
	if err != nil {
		writeError(c, apperror.Validation(apperror.CodeInvalidArgument, err.Error()))
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	if err := h.svc.Store().NavigateRelative(ctx, dir); err != nil {
		writeError(c, err)
		return
	}
	h.State(c)
}

// NavigateToL1 jumps to the middle L2 block of a visible L1 group.
func (h *Handlers) NavigateToL1(c *gin.Context) {
	n, ok := parseNumber(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	if err := h.svc.NavigateToL1(ctx, n); err != nil {
		writeError(c, err)
		return
	}
	h.State(c)
}

// SetLive toggles live mode.
func (h *Handlers) SetLive(c *gin.Context) {
	var req liveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperror.Validation(apperror.CodeInvalidArgument, "body must be {\"live\": bool}"))
		return
	}
	h.svc.Store().SetLiveMode(*req.Live)
	h.State(c)
}

// Reset clears the window back to its initial state.
func (h *Handlers) Reset(c *gin.Context) {
	h.svc.Store().Reset()
	h.State(c)
}

// SetPosition moves the position without changing mode or loading blocks.
func (h *Handlers) SetPosition(c *gin.Context) {
	n, ok := parseNumber(c)
	if !ok {
		return
	}
	h.svc.Store().SetCurrentPosition(n)
	h.State(c)
}

// ClearBlocks drops the stored blocks, keeping tip, position and mode.
func (h *Handlers) ClearBlocks(c *gin.Context) {
	h.svc.Store().ClearBlocks()
	h.State(c)
}

// LoadHistorical fetches ?count= blocks downward from ?from=, or from below
// the oldest stored block when from is absent.
func (h *Handlers) LoadHistorical(c *gin.Context) {
	count := defaultHistoryCount
	if raw := c.Query("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryCount {
			writeError(c, apperror.Validation(apperror.CodeInvalidArgument,
				fmt.Sprintf("count must be in 1..%d, got %q", maxHistoryCount, raw)))
			return
		}
		count = n
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	var err error
	if raw := c.Query("from"); raw != "" {
		from, perr := strconv.ParseUint(raw, 10, 64)
		if perr != nil {
			writeError(c, apperror.Validation(apperror.CodeInvalidArgument, "invalid block number "+strconv.Quote(raw)))
			return
		}
		if tip := h.svc.Store().State().TipNumber; tip > 0 && from > tip {
			writeError(c, apperror.New(apperror.CodeBlockOutOfRange,
				apperror.WithContext(fmt.Sprintf("block %d is in the future, tip is %d", from, tip))))
			return
		}
		err = h.svc.Store().LoadHistorical(ctx, from, count)
	} else {
		err = h.svc.LoadOlder(ctx, count)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	h.State(c)
}

func parseNumber(c *gin.Context) (uint64, bool) {
	raw := c.Param("number")
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeError(c, apperror.Validation(apperror.CodeInvalidArgument, "invalid block number "+strconv.Quote(raw)))
		return 0, false
	}
	return n, true
}

package handlers

import (
	"context"
	"encoding/csv"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"lotto/internal/auth"
	"lotto/internal/infra/postgres"
	"lotto/internal/ledger"
	"lotto/internal/models"
	"lotto/internal/oracle"
	"lotto/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	callerKey         = "caller"
	requestIDKey      = "requestID"
	oracleTokenHeader = "X-Oracle-Token"

	defaultPageSize = 100
	maxPageSize     = 1000
)

// EventLog reads back journaled events.
type EventLog interface {
	Recent(ctx context.Context, roundID uint64, limit int) ([]postgres.Row, error)
}

// Options configures the optional parts of the API.
type Options struct {
	Signer *auth.Signer
	// Callback is set when randomness is delivered through POST /oracle/fulfill.
	Callback      *oracle.Callback
	CallbackToken string
	Journal       EventLog
	Denomination  ledger.Denomination
}

// HTTPHandler holds the dependencies for the HTTP handlers, like the lottery service.
type HTTPHandler struct {
	service *services.LotteryService
	opts    Options
}

// NewHTTPHandler creates a new HTTPHandler.
func NewHTTPHandler(service *services.LotteryService, opts Options) *HTTPHandler {
	return &HTTPHandler{
		service: service,
		opts:    opts,
	}
}

// RegisterPublicRoutes registers routes that need no caller identity.
func (h *HTTPHandler) RegisterPublicRoutes(router gin.IRouter) {
	router.GET("/healthz", h.Health)
	router.GET("/config", h.GetConfig)
	router.GET("/rounds/:id", h.GetRound)
	router.GET("/rounds/:id/quote", h.GetQuote)
	router.GET("/rounds/:id/cost", h.GetCost)
	router.GET("/tickets/:id", h.GetTicket)
	router.GET("/events", h.GetEvents)
	router.GET("/oracle/requests", h.ListOracleRequests)
	router.POST("/oracle/fulfill", h.FulfillRandomness)
}

// RegisterCallerRoutes registers routes acting on behalf of the token holder.
// The group must use AuthMiddleware.
func (h *HTTPHandler) RegisterCallerRoutes(router gin.IRouter) {
	router.GET("/balance", h.GetBalance)
	router.GET("/rounds/:id/tickets", h.ListTickets)
	router.GET("/rounds/:id/export", h.ExportTicketsCSV)
	router.GET("/rounds/:id/batches", h.ListBatches)
	router.GET("/rounds/:id/batches/:index", h.GetBatch)
	router.POST("/rounds/:id/tickets", h.BuyTickets)
	router.POST("/rounds/:id/claims", h.Claim)
	router.POST("/tickets/:id/transfer", h.TransferTicket)

	router.POST("/rounds", h.CreateRound)
	router.POST("/rounds/:id/draw", h.RequestDraw)
	router.PUT("/config/buckets", h.UpdateBuckets)
	router.PUT("/config/size", h.UpdateLotterySize)
	router.PUT("/config/max-range", h.UpdateMaxRange)
	router.POST("/treasury/withdraw", h.WithdrawExcess)
}

// RequestIDMiddleware tags every request with an id, reusing the client's
// X-Request-ID when present.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// AuthMiddleware resolves the caller address from the bearer token.
func (h *HTTPHandler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		addr, err := h.opts.Signer.Verify(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": err.Error()})
			return
		}
		c.Set(callerKey, addr)
		c.Next()
	}
}

func caller(c *gin.Context) string {
	return c.GetString(callerKey)
}

// statusOf maps a domain error to an HTTP status.
func statusOf(err error) int {
	switch models.KindOf(err) {
	case models.KindValidation:
		return http.StatusBadRequest
	case models.KindAuthorization:
		return http.StatusForbidden
	case models.KindTiming, models.KindState, models.KindDuplicateConfig:
		return http.StatusConflict
	case models.KindPayment:
		return http.StatusPaymentRequired
	case models.KindNotFound:
		return http.StatusNotFound
	case models.KindOracle:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (h *HTTPHandler) fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		logger.Errorf("request %s %s (%s): %v", c.Request.Method, c.FullPath(), c.GetString(requestIDKey), err)
	}
	c.JSON(status, gin.H{"error": models.CodeOf(err), "message": err.Error()})
}

func badRequest(c *gin.Context, format string, args ...interface{}) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": fmt.Sprintf(format, args...)})
}

func uintParam(c *gin.Context, name string) (uint64, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		badRequest(c, "invalid %s %q", name, c.Param(name))
		return 0, false
	}
	return v, true
}

func uintQuery(c *gin.Context, name string, def uint64) (uint64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		badRequest(c, "invalid %s %q", name, raw)
		return 0, false
	}
	return v, true
}

// Health reports liveness.
func (h *HTTPHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "rounds": h.service.RoundCount()})
}

// GetConfig returns the current lottery settings.
func (h *HTTPHandler) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"settings": h.service.Settings(),
		"decimals": h.opts.Denomination.Decimals,
	})
}

// GetRound returns one round.
func (h *HTTPHandler) GetRound(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	round, err := h.service.RoundInfo(id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, round)
}

// GetQuote prices ?count= tickets of a round, in base units and tokens.
func (h *HTTPHandler) GetQuote(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	count, ok := uintQuery(c, "count", 1)
	if !ok {
		return
	}
	q, err := h.service.Quote(id, count)
	if err != nil {
		h.fail(c, err)
		return
	}
	d := h.opts.Denomination
	c.JSON(http.StatusOK, gin.H{
		"count": count,
		"quote": q,
		"tokens": gin.H{
			"gross":    d.FromUnits(q.Gross),
			"discount": d.FromUnits(q.Discount),
			"net":      d.FromUnits(q.Net),
		},
	})
}

// GetCost returns only the amount a buyer pays for ?count= tickets.
func (h *HTTPHandler) GetCost(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	count, ok := uintQuery(c, "count", 1)
	if !ok {
		return
	}
	net, err := h.service.QuoteNet(id, count)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count, "net": net, "tokens": h.opts.Denomination.FromUnits(net)})
}

// GetTicket returns one ticket.
func (h *HTTPHandler) GetTicket(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	t, err := h.service.Ticket(id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

type eventView struct {
	ID    int64        `json:"id"`
	Event models.Event `json:"event"`
}

// GetEvents lists journaled events, newest first. ?round= filters by round.
func (h *HTTPHandler) GetEvents(c *gin.Context) {
	if h.opts.Journal == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "journal_disabled", "message": "no event journal is configured"})
		return
	}
	roundID, ok := uintQuery(c, "round", 0)
	if !ok {
		return
	}
	limit, ok := uintQuery(c, "limit", defaultPageSize)
	if !ok {
		return
	}
	rows, err := h.opts.Journal.Recent(c.Request.Context(), roundID, int(limit))
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]eventView, 0, len(rows))
	for _, row := range rows {
		evt, err := row.Event()
		if err != nil {
			logger.Warningf("events: skipping undecodable row %d: %v", row.ID, err)
			continue
		}
		out = append(out, eventView{ID: row.ID, Event: evt})
	}
	c.JSON(http.StatusOK, out)
}

type fulfillRequest struct {
	RequestID string `json:"requestId" binding:"required"`
	// Value is decimal or 0x-prefixed hex.
	Value string `json:"value" binding:"required"`
}

// oracleCaller checks that callback mode is on and the request carries the
// oracle token. It writes the error response itself.
func (h *HTTPHandler) oracleCaller(c *gin.Context) bool {
	if h.opts.Callback == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "callback_disabled", "message": "oracle does not accept callbacks"})
		return false
	}
	if h.opts.CallbackToken == "" || c.GetHeader(oracleTokenHeader) != h.opts.CallbackToken {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "invalid oracle token"})
		return false
	}
	return true
}

// ListOracleRequests lists the randomness requests issued in callback mode,
// oldest first. ?pending=true keeps only unanswered ones.
func (h *HTTPHandler) ListOracleRequests(c *gin.Context) {
	if !h.oracleCaller(c) {
		return
	}
	pending := c.Query("pending") == "true"
	out := []oracle.Request{}
	for _, req := range h.opts.Callback.Requests() {
		if pending && req.Answered {
			continue
		}
		out = append(out, req)
	}
	c.JSON(http.StatusOK, out)
}

// FulfillRandomness accepts the oracle's answer in callback mode.
func (h *HTTPHandler) FulfillRandomness(c *gin.Context) {
	if !h.oracleCaller(c) {
		return
	}
	var req fulfillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "%v", err)
		return
	}
	value, ok := new(big.Int).SetString(strings.TrimSpace(req.Value), 0)
	if !ok || value.Sign() < 0 {
		badRequest(c, "invalid value %q", req.Value)
		return
	}
	accepted, err := h.opts.Callback.Fulfill(c.Request.Context(), req.RequestID, value)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "oracle_unbound", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accepted": accepted})
}

// GetBalance returns the caller's ledger balance.
func (h *HTTPHandler) GetBalance(c *gin.Context) {
	bal, err := h.service.Balance(c.Request.Context(), caller(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"holder": caller(c),
		"units":  bal,
		"tokens": h.opts.Denomination.FromUnits(bal),
	})
}

// ListTickets pages through the caller's tickets with ?offset=&limit=.
func (h *HTTPHandler) ListTickets(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	offset, ok := uintQuery(c, "offset", 0)
	if !ok {
		return
	}
	limit, ok := uintQuery(c, "limit", defaultPageSize)
	if !ok {
		return
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	ids, total, err := h.service.UserTicketsPaginated(caller(c), id, offset, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticketIds": ids, "offset": offset, "total": total})
}

// ExportTicketsCSV downloads the caller's tickets of a round as CSV.
func (h *HTTPHandler) ExportTicketsCSV(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	ids, err := h.service.UserTickets(id, caller(c))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment;filename=round_%d_tickets.csv", id))
	w := csv.NewWriter(c.Writer)
	if err := w.Write([]string{"ticket_id", "round_id", "numbers", "claimed"}); err != nil {
		logger.Infof("Error writing CSV header: %v", err)
		c.String(http.StatusInternalServerError, "Error writing CSV")
		return
	}
	for _, tid := range ids {
		t, err := h.service.Ticket(tid)
		if err != nil {
			logger.Infof("Skipping ticket %d in export: %v", tid, err)
			continue
		}
		// a transferred ticket is no longer the caller's
		if t.Owner != caller(c) {
			continue
		}
		digits := make([]string, len(t.Numbers))
		for i, n := range t.Numbers {
			digits[i] = strconv.FormatUint(uint64(n), 10)
		}
		row := []string{strconv.FormatUint(t.ID, 10), strconv.FormatUint(t.RoundID, 10), strings.Join(digits, " "), strconv.FormatBool(t.Claimed)}
		if err := w.Write(row); err != nil {
			logger.Infof("Error writing CSV row: %v", err)
			c.String(http.StatusInternalServerError, "Error writing CSV")
			return
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		logger.Infof("Error flushing CSV writer: %v", err)
	}
}

// ListBatches returns every purchase the caller made in a round.
func (h *HTTPHandler) ListBatches(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	n, err := h.service.UserBatchCount(caller(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	batches := make([]models.UserRoundBatch, 0, n)
	for i := 0; i < n; i++ {
		b, err := h.service.UserBatch(caller(c), id, i)
		if err != nil {
			h.fail(c, err)
			return
		}
		batches = append(batches, b)
	}
	c.JSON(http.StatusOK, gin.H{"count": n, "batches": batches})
}

// GetBatch returns one purchase with its ticket ids.
func (h *HTTPHandler) GetBatch(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		badRequest(c, "invalid index %q", c.Param("index"))
		return
	}
	b, err := h.service.UserBatch(caller(c), id, index)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"batch": b, "ticketIds": b.TicketIDs()})
}

type buyRequest struct {
	// Count defaults to the number of rows.
	Count   *uint64    `json:"count"`
	Numbers [][]uint32 `json:"numbers"`
}

// BuyTickets buys a batch of tickets for the caller.
func (h *HTTPHandler) BuyTickets(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req buyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "%v", err)
		return
	}
	count := uint64(len(req.Numbers))
	if req.Count != nil {
		count = *req.Count
	}
	purchase, err := h.service.BuyTickets(c.Request.Context(), caller(c), id, count, req.Numbers)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, purchase)
}

type claimRequest struct {
	TicketIDs []uint64 `json:"ticketIds" binding:"required"`
}

// Claim settles one or more of the caller's tickets. Several ids are
// settled all-or-nothing.
func (h *HTTPHandler) Claim(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "%v", err)
		return
	}
	ctx := c.Request.Context()
	if len(req.TicketIDs) == 1 {
		res, err := h.service.Claim(ctx, caller(c), id, req.TicketIDs[0])
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"results": []models.ClaimResult{res}, "total": res.Amount})
		return
	}
	results, total, err := h.service.BatchClaim(ctx, caller(c), id, req.TicketIDs)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "total": total})
}

type transferRequest struct {
	To string `json:"to" binding:"required"`
}

// TransferTicket gives one of the caller's unclaimed tickets away.
func (h *HTTPHandler) TransferTicket(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "%v", err)
		return
	}
	if err := h.service.TransferTicket(c.Request.Context(), caller(c), id, req.To); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticketId": id, "owner": req.To})
}

// CreateRound opens a round. Admin only.
func (h *HTTPHandler) CreateRound(c *gin.Context) {
	var p models.RoundParams
	if err := c.ShouldBindJSON(&p); err != nil {
		badRequest(c, "%v", err)
		return
	}
	round, err := h.service.CreateRound(c.Request.Context(), caller(c), p)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, round)
}

type drawRequest struct {
	Seed string `json:"seed"`
}

// RequestDraw asks the oracle for a round's randomness. Admin only.
func (h *HTTPHandler) RequestDraw(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req drawRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "%v", err)
			return
		}
	}
	if req.Seed == "" {
		req.Seed = uuid.New().String()
	}
	requestID, err := h.service.RequestDraw(c.Request.Context(), caller(c), id, req.Seed)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"roundId": id, "requestId": requestID, "seed": req.Seed})
}

// UpdateBuckets replaces the discount table. Admin only.
func (h *HTTPHandler) UpdateBuckets(c *gin.Context) {
	var b models.BucketConfig
	if err := c.ShouldBindJSON(&b); err != nil {
		badRequest(c, "%v", err)
		return
	}
	if err := h.service.UpdateBuckets(c.Request.Context(), caller(c), b); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.service.Settings())
}

type valueRequest struct {
	Value uint32 `json:"value"`
}

// UpdateLotterySize sets the digit count for new rounds. Admin only.
func (h *HTTPHandler) UpdateLotterySize(c *gin.Context) {
	h.updateSetting(c, h.service.UpdateLotterySize)
}

// UpdateMaxRange sets the digit range for new rounds. Admin only.
func (h *HTTPHandler) UpdateMaxRange(c *gin.Context) {
	h.updateSetting(c, h.service.UpdateMaxRange)
}

func (h *HTTPHandler) updateSetting(c *gin.Context, update func(context.Context, string, uint32) error) {
	var req valueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "%v", err)
		return
	}
	if err := update(c.Request.Context(), caller(c), req.Value); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.service.Settings())
}

type withdrawRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// WithdrawExcess pays custody funds out to the calling admin.
func (h *HTTPHandler) WithdrawExcess(c *gin.Context) {
	var req withdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "%v", err)
		return
	}
	if err := h.service.WithdrawExcess(c.Request.Context(), caller(c), req.Amount); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"to": caller(c), "amount": req.Amount})
}

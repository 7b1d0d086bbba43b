// Package http 多币种账本 HTTP 接口
package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/nilebridge/cargoledger/internal/ledger/application"
	"github.com/nilebridge/cargoledger/internal/ledger/domain"
)

type Handler struct {
	payments *application.PaymentService
	loadings *application.LoadingService
	queries  *application.QueryService
	admin    *application.AdminService
	engine   *application.ReconciliationEngine
	convert  *domain.Converter
}

func NewHandler(
	payments *application.PaymentService,
	loadings *application.LoadingService,
	queries *application.QueryService,
	admin *application.AdminService,
	engine *application.ReconciliationEngine,
	convert *domain.Converter,
) *Handler {
	return &Handler{
		payments: payments,
		loadings: loadings,
		queries:  queries,
		admin:    admin,
		engine:   engine,
		convert:  convert,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	clients := r.Group("/clients")
	{
		clients.POST("", h.CreateClient)
		clients.GET("", h.ListClients)
		clients.GET("/:id/balances", h.ClientBalances)
		clients.GET("/:id/statement", h.ClientStatement)
		clients.PUT("/:id/status", h.SetClientStatus)
		clients.POST("/:id/recompute", h.RecomputeBalances)
	}

	payments := r.Group("/payments")
	{
		payments.POST("", h.ProcessPayment)
		payments.POST("/partial", h.ProcessPartialPayment)
		payments.POST("/refund", h.ProcessRefund)
	}

	entries := r.Group("/entries")
	{
		entries.GET("/:txno", h.GetEntry)
		entries.POST("/:txno/approve", h.ApproveEntry)
		entries.DELETE("/:txno", h.HardDeleteEntry)
	}

	loadings := r.Group("/loadings")
	{
		loadings.POST("", h.LoadingCreated)
		loadings.PUT("/:id", h.LoadingUpdated)
		loadings.DELETE("/:id", h.LoadingDeleted)
	}

	rates := r.Group("/rates")
	{
		rates.GET("", h.ListRates)
		rates.POST("", h.UpsertRate)
		rates.GET("/convert", h.Convert)
	}

	r.GET("/cashbox", h.CashboxStatement)
}

// writeError 按领域错误码映射 HTTP 状态码
func writeError(c *gin.Context, err error) {
	de := domain.AsError(err)

	var status int
	switch de.Code {
	case domain.CodeValidation:
		status = http.StatusBadRequest
	case domain.CodeExceedsBalance, domain.CodeRateNotFound:
		status = http.StatusUnprocessableEntity
	case domain.CodeNotFound:
		status = http.StatusNotFound
	case domain.CodeConcurrency:
		status = http.StatusConflict
	default:
		status = http.StatusInternalServerError
	}

	c.JSON(status, gin.H{"code": de.Code, "error": de.Message})
}

// AmountsReq 四币种金额请求体，全部可省略，省略按零处理
type AmountsReq struct {
	RMB string `json:"rmb"`
	USD string `json:"usd"`
	SDG string `json:"sdg"`
	AED string `json:"aed"`
}

func (r AmountsReq) parse() (domain.Amounts, error) {
	a := domain.ZeroAmounts()
	for _, f := range []struct {
		raw string
		ccy domain.Currency
	}{
		{r.RMB, domain.CurrencyRMB},
		{r.USD, domain.CurrencyUSD},
		{r.SDG, domain.CurrencySDG},
		{r.AED, domain.CurrencyAED},
	} {
		if f.raw == "" {
			continue
		}
		v, err := decimal.NewFromString(f.raw)
		if err != nil {
			return a, domain.NewError(domain.CodeValidation, "invalid %s amount %q", f.ccy, f.raw)
		}
		a = a.Set(f.ccy, v)
	}
	return a, nil
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, domain.NewError(domain.CodeValidation, "invalid date %q, expected YYYY-MM-DD", raw)
	}
	return t, nil
}

func parseID(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		writeError(c, domain.NewError(domain.CodeValidation, "invalid %s", name))
		return 0, false
	}
	return id, true
}

func pageParams(c *gin.Context) (page, pageSize int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return page, pageSize
}

// --- 客户 ---

type CreateClientReq struct {
	Code       string `json:"code" binding:"required"`
	Name       string `json:"name" binding:"required"`
	ArabicName string `json:"arabic_name"`
	ActorID    string `json:"actor_id"`
}

func (h *Handler) CreateClient(c *gin.Context) {
	var req CreateClientReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": domain.CodeValidation, "error": err.Error()})
		return
	}

	id, err := h.admin.CreateClient(c.Request.Context(), application.CreateClientCommand{
		Code:       req.Code,
		Name:       req.Name,
		ArabicName: req.ArabicName,
		ActorID:    req.ActorID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"client_id": id})
}

func (h *Handler) ListClients(c *gin.Context) {
	var status *domain.ClientStatus
	if raw := c.Query("status"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			writeError(c, domain.NewError(domain.CodeValidation, "invalid status %q", raw))
			return
		}
		s := domain.ClientStatus(v)
		status = &s
	}

	page, pageSize := pageParams(c)
	clients, total, err := h.queries.ListClients(c.Request.Context(), status, page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "clients": clients})
}

func (h *Handler) ClientBalances(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	client, err := h.queries.ClientBalances(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"client_id": client.ID,
		"code":      client.Code,
		"balances":  client.Balances(),
	})
}

func (h *Handler) ClientStatement(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var entryType *domain.EntryType
	if raw := c.Query("type"); raw != "" {
		t := domain.EntryType(raw)
		entryType = &t
	}

	page, pageSize := pageParams(c)
	entries, total, err := h.queries.ClientStatement(c.Request.Context(), id, entryType, page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "entries": entries})
}

type SetClientStatusReq struct {
	Active  *bool  `json:"active" binding:"required"`
	ActorID string `json:"actor_id"`
}

func (h *Handler) SetClientStatus(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req SetClientStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": domain.CodeValidation, "error": err.Error()})
		return
	}

	if err := h.admin.SetClientStatus(c.Request.Context(), id, *req.Active, req.ActorID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handler) RecomputeBalances(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	balances, err := h.engine.Recompute(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"client_id": id, "balances": balances})
}

// --- 收款 ---

type PaymentReq struct {
	ClientID uint64     `json:"client_id" binding:"required"`
	Amounts  AmountsReq `json:"amounts" binding:"required"`
	Date     string     `json:"date"`
	ActorID  string     `json:"actor_id"`
	Remark   string     `json:"remark"`
}

func (h *Handler) ProcessPayment(c *gin.Context) {
	var req PaymentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": domain.CodeValidation, "error": err.Error()})
		return
	}

	amounts, err := req.Amounts.parse()
	if err != nil {
		writeError(c, err)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeError(c, err)
		return
	}

	txNo, err := h.payments.ProcessPayment(c.Request.Context(), application.PaymentCommand{
		ClientID: req.ClientID,
		Amounts:  amounts,
		Date:     date,
		ActorID:  req.ActorID,
		Remark:   req.Remark,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction_no": txNo})
}

type PartialPaymentReq struct {
	ParentTransactionNo string     `json:"parent_transaction_no" binding:"required"`
	Amounts             AmountsReq `json:"amounts" binding:"required"`
	Date                string     `json:"date"`
	ActorID             string     `json:"actor_id"`
	Remark              string     `json:"remark"`
}

func (h *Handler) ProcessPartialPayment(c *gin.Context) {
	var req PartialPaymentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": domain.CodeValidation, "error": err.Error()})
		return
	}

	amounts, err := req.Amounts.parse()
	if err != nil {
		writeError(c, err)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeError(c, err)
		return
	}

	txNo, err := h.payments.ProcessPartialPayment(c.Request.Context(), application.PartialPaymentCommand{
		ParentTransactionNo: req.ParentTransactionNo,
		Amounts:             amounts,
		Date:                date,
		ActorID:             req.ActorID,
		Remark:              req.Remark,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction_no": txNo})
}

type RefundReq struct {
	TransactionNo string     `json:"transaction_no" binding:"required"`
	Amounts       AmountsReq `json:"amounts" binding:"required"`
	Date          string     `json:"date"`
	ActorID       string     `json:"actor_id"`
	Remark        string     `json:"remark"`
}

func (h *Handler) ProcessRefund(c *gin.Context) {
	var req RefundReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": domain.CodeValidation, "error": err.Error()})
		return
	}

	amounts, err := req.Amounts.parse()
	if err != nil {
		writeError(c, err)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeError(c, err)
		return
	}

	txNo, err := h.payments.ProcessRefund(c.Request.Context(), application.RefundCommand{
		TransactionNo: req.TransactionNo,
		Amounts:       amounts,
		Date:          date,
		ActorID:       req.ActorID,
		Remark:        req.Remark,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction_no": txNo})
}

// --- 分录 ---

func (h *Handler) GetEntry(c *gin.Context) {
	entry, err := h.queries.Entry(c.Request.Context(), c.Param("txno"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

type ApproveReq struct {
	ActorID string `json:"actor_id"`
}

func (h *Handler) ApproveEntry(c *gin.Context) {
	var req ApproveReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": domain.CodeValidation, "error": err.Error()})
		return
	}

	if err := h.payments.ApproveClaim(c.Request.Context(), c.Param("txno"), req.ActorID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handler) HardDeleteEntry(c *gin.Context) {
	actorID := c.Query("actor_id")
	if err := h.payments.HardDeleteEntry(c.Request.Context(), c.Param("txno"), actorID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

// --- 装载债权 ---

type LoadingReq struct {
	LoadingID      uint64 `json:"loading_id" binding:"required"`
	ClientID       uint64 `json:"client_id" binding:"required"`
	PurchaseAmount string `json:"purchase_amount"`
	Commission     string `json:"commission"`
	ShippingUSD    string `json:"shipping_usd"`
	Date           string `json:"date"`
	ActorID        string `json:"actor_id"`
	Remark         string `json:"remark"`
}

func (r LoadingReq) toData() (application.LoadingData, error) {
	data := application.LoadingData{
		LoadingID: r.LoadingID,
		ClientID:  r.ClientID,
		ActorID:   r.ActorID,
		Remark:    r.Remark,
	}

	var err error
	if data.Date, err = parseDate(r.Date); err != nil {
		return data, err
	}

	for _, f := range []struct {
		raw  string
		dest *decimal.Decimal
		name string
	}{
		{r.PurchaseAmount, &data.PurchaseAmount, "purchase_amount"},
		{r.Commission, &data.Commission, "commission"},
		{r.ShippingUSD, &data.ShippingUSD, "shipping_usd"},
	} {
		if f.raw == "" {
			*f.dest = decimal.Zero
			continue
		}
		v, err := decimal.NewFromString(f.raw)
		if err != nil {
			return data, domain.NewError(domain.CodeValidation, "invalid %s %q", f.name, f.raw)
		}
		*f.dest = v
	}
	return data, nil
}

func (h *Handler) LoadingCreated(c *gin.Context) {
	var req LoadingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": domain.CodeValidation, "error": err.Error()})
		return
	}

	data, err := req.toData()
	if err != nil {
		writeError(c, err)
		return
	}

	txNo, err := h.loadings.OnLoadingCreated(c.Request.Context(), data)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction_no": txNo})
}

func (h *Handler) LoadingUpdated(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req LoadingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": domain.CodeValidation, "error": err.Error()})
		return
	}
	req.LoadingID = id

	data, err := req.toData()
	if err != nil {
		writeError(c, err)
		return
	}

	txNo, err := h.loadings.OnLoadingUpdated(c.Request.Context(), data)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction_no": txNo})
}

func (h *Handler) LoadingDeleted(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	txNo, err := h.loadings.OnLoadingDeleted(c.Request.Context(), id, c.Query("actor_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction_no": txNo})
}

// --- 汇率 ---

func (h *Handler) ListRates(c *gin.Context) {
	rates, err := h.queries.ListRates(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rates": rates})
}

type UpsertRateReq struct {
	From    string `json:"from" binding:"required"`
	To      string `json:"to" binding:"required"`
	Rate    string `json:"rate" binding:"required"`
	Source  string `json:"source"`
	ActorID string `json:"actor_id"`
}

func (h *Handler) UpsertRate(c *gin.Context) {
	var req UpsertRateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": domain.CodeValidation, "error": err.Error()})
		return
	}

	rate, err := decimal.NewFromString(req.Rate)
	if err != nil {
		writeError(c, domain.NewError(domain.CodeValidation, "invalid rate %q", req.Rate))
		return
	}

	if err := h.admin.UpsertRate(c.Request.Context(), application.UpsertRateCommand{
		From:    domain.Currency(req.From),
		To:      domain.Currency(req.To),
		Rate:    rate,
		Source:  domain.RateSourceType(req.Source),
		ActorID: req.ActorID,
	}); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handler) Convert(c *gin.Context) {
	amount, err := decimal.NewFromString(c.Query("amount"))
	if err != nil {
		writeError(c, domain.NewError(domain.CodeValidation, "invalid amount %q", c.Query("amount")))
		return
	}

	result, err := h.convert.Convert(c.Request.Context(), amount,
		domain.Currency(c.Query("from")), domain.Currency(c.Query("to")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"from":   c.Query("from"),
		"to":     c.Query("to"),
		"amount": amount,
		"result": result,
	})
}

// --- 钱箱 ---

func (h *Handler) CashboxStatement(c *gin.Context) {
	var from, to *time.Time
	if raw := c.Query("from"); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			writeError(c, err)
			return
		}
		from = &t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			writeError(c, err)
			return
		}
		to = &t
	}

	page, pageSize := pageParams(c)
	movements, total, err := h.queries.CashboxStatement(c.Request.Context(), from, to, page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "movements": movements})
}

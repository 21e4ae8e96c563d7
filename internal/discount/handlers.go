package discount

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-grocery/internal/common"
)

// Handler exposes discount evaluation and administration endpoints.
type Handler struct {
	Svc            *Service
	DefaultPerPage int
}

type rulePayload struct {
	Name                string          `json:"name" validate:"required,max=120"`
	Type                string          `json:"type" validate:"required,oneof=MANUAL MINIMUM_PURCHASE BOGO REGULAR"`
	ValueType           string          `json:"valueType" validate:"omitempty,oneof=PERCENTAGE NOMINAL"`
	Value               decimal.Decimal `json:"value"`
	MaxDiscountAmount   *int64          `json:"maxDiscountAmount" validate:"omitempty,gte=0"`
	MinTransactionValue *int64          `json:"minTransactionValue" validate:"omitempty,gte=0"`
	StartDate           time.Time       `json:"startDate" validate:"required"`
	EndDate             time.Time       `json:"endDate" validate:"required,gtefield=StartDate"`
	TotalUsageLimit     *int            `json:"totalUsageLimit" validate:"omitempty,gte=0,lte=2147483647"`
	MaxUsagePerCustomer *int            `json:"maxUsagePerCustomer" validate:"omitempty,gte=0,lte=2147483647"`
	IsActive            *bool           `json:"isActive"`
	BogoConfig          *BogoConfig     `json:"bogoConfig"`
	ProductIDs          []string        `json:"productIds" validate:"omitempty,dive,uuid"`
}

type evaluateRequest struct {
	ProductPrice int64   `json:"productPrice" validate:"gte=0,lte=1000000000000"`
	Quantity     int     `json:"quantity" validate:"gte=0,lte=1000000"`
	CartSubtotal int64   `json:"cartSubtotal" validate:"gte=0,lte=1000000000000000"`
	CustomerID   *string `json:"customerId" validate:"omitempty,uuid"`
}

type redeemRequest struct {
	evaluateRequest
	OrderID string `json:"orderId" validate:"required,uuid"`
}

type evaluationResponse struct {
	RuleID   uuid.UUID `json:"ruleId"`
	RuleName string    `json:"ruleName"`
	Result
	Message string `json:"message,omitempty"`
}

// Evaluate prices a product against the rule in the URL. Business
// rejections are returned with status 200 and applied=false.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "discount service not configured", nil)
		return
	}
	id, ok := ruleIDParam(w, r)
	if !ok {
		return
	}
	var req evaluateRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	in, err := req.input()
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error(), nil)
		return
	}
	ev, err := h.Svc.Evaluate(r.Context(), id, in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": toResponse(ev)})
}

// BestForProduct returns the best applicable discount for the product in the URL.
func (h *Handler) BestForProduct(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "discount service not configured", nil)
		return
	}
	productID, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "productId")))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid product id", nil)
		return
	}
	var req evaluateRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	in, err := req.input()
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error(), nil)
		return
	}
	ev, found, err := h.Svc.BestForProduct(r.Context(), productID, in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !found {
		common.JSON(w, http.StatusOK, map[string]any{"data": nil})
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": toResponse(ev)})
}

// Redeem records usage of a rule for an order.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "discount service not configured", nil)
		return
	}
	id, ok := ruleIDParam(w, r)
	if !ok {
		return
	}
	var req redeemRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	in, err := req.input()
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error(), nil)
		return
	}
	orderID, _ := uuid.Parse(req.OrderID)
	red, err := h.Svc.Redeem(r.Context(), id, orderID, in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	status := http.StatusCreated
	if red.Duplicate {
		status = http.StatusOK
	}
	common.JSON(w, status, map[string]any{"data": red})
}

// Create inserts a new rule.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "discount service not configured", nil)
		return
	}
	var payload rulePayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	rule, err := payload.rule()
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	created, err := h.Svc.Create(r.Context(), rule)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": created})
}

// Update replaces the editable fields of the rule in the URL.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "discount service not configured", nil)
		return
	}
	id, ok := ruleIDParam(w, r)
	if !ok {
		return
	}
	var payload rulePayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	rule, err := payload.rule()
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	rule.ID = id
	updated, err := h.Svc.Update(r.Context(), rule)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": updated})
}

// Get returns a single rule.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "discount service not configured", nil)
		return
	}
	id, ok := ruleIDParam(w, r)
	if !ok {
		return
	}
	rule, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rule})
}

// List returns a page of rules.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "discount service not configured", nil)
		return
	}
	perPageDefault := h.DefaultPerPage
	if perPageDefault <= 0 {
		perPageDefault = 20
	}
	page, perPage := common.ParsePagination(r, perPageDefault)
	if perPage > 100 {
		perPage = 100
	}
	rules, total, err := h.Svc.List(r.Context(), page, perPage)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       rules,
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: total},
	})
}

func (req evaluateRequest) input() (Input, error) {
	in := Input{ProductPrice: req.ProductPrice, Quantity: req.Quantity, CartSubtotal: req.CartSubtotal}
	if req.CustomerID != nil && strings.TrimSpace(*req.CustomerID) != "" {
		id, err := uuid.Parse(strings.TrimSpace(*req.CustomerID))
		if err != nil {
			return Input{}, errors.New("invalid customer id")
		}
		in.CustomerID = &id
	}
	return in, nil
}

func (p rulePayload) rule() (Rule, error) {
	typ, err := ParseType(p.Type)
	if err != nil {
		return Rule{}, err
	}
	rule := Rule{
		Name:                strings.TrimSpace(p.Name),
		Type:                typ,
		Value:               p.Value,
		MaxDiscountAmount:   p.MaxDiscountAmount,
		MinTransactionValue: p.MinTransactionValue,
		StartDate:           p.StartDate,
		EndDate:             p.EndDate,
		TotalUsageLimit:     p.TotalUsageLimit,
		MaxUsagePerCustomer: p.MaxUsagePerCustomer,
		IsActive:            true,
		Bogo:                p.BogoConfig,
	}
	if p.IsActive != nil {
		rule.IsActive = *p.IsActive
	}
	if typ != TypeBOGO || strings.TrimSpace(p.ValueType) != "" {
		vt, err := ParseValueType(p.ValueType)
		if err != nil {
			return Rule{}, err
		}
		rule.ValueType = vt
	}
	for _, raw := range p.ProductIDs {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			return Rule{}, errors.New("invalid product id")
		}
		rule.ProductIDs = append(rule.ProductIDs, id)
	}
	return rule, nil
}

func toResponse(ev Evaluation) evaluationResponse {
	resp := evaluationResponse{RuleID: ev.Rule.ID, RuleName: ev.Rule.Name, Result: ev.Result}
	if ev.Result.RejectionReason != "" {
		resp.Message = ev.Result.RejectionReason.Message()
	}
	return resp
}

func ruleIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "id")))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid discount id", nil)
		return uuid.UUID{}, false
	}
	return id, true
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "discount not found", nil)
	case errors.Is(err, ErrInvalidRule):
		common.JSONError(w, http.StatusBadRequest, "INVALID_RULE", err.Error(), nil)
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error(), nil)
	case errors.Is(err, ErrNotRedeemable):
		common.JSONError(w, http.StatusUnprocessableEntity, "NOT_REDEEMABLE", err.Error(), nil)
	case errors.Is(err, ErrLimitBelowUsage):
		common.JSONError(w, http.StatusConflict, "LIMIT_BELOW_USAGE", err.Error(), nil)
	case errors.Is(err, ErrUsageLimitReached), errors.Is(err, ErrCustomerLimitReached):
		common.JSONError(w, http.StatusConflict, "LIMIT_REACHED", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "discount operation failed", nil)
	}
}

package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/opsportal/portal/internal/core/domain"
	"github.com/opsportal/portal/internal/core/ports"
)

// LedgerHandler serves scope-filtered payments and invoices.
type LedgerHandler struct {
	ledger ports.LedgerService
}

func NewLedgerHandler(ledger ports.LedgerService) *LedgerHandler {
	return &LedgerHandler{ledger: ledger}
}

type paymentListResponse struct {
	Items []*domain.Payment `json:"items"`
}

type invoiceListResponse struct {
	Items []*domain.Invoice `json:"items"`
}

// ListPayments handles GET /v1/payments.
//
// @Summary      List payments
// @Tags         ledger
// @Produce      json
// @Security     SessionCookie
// @Param        page   query     int  false  "Page number (1-based)"
// @Param        limit  query     int  false  "Page size"
// @Success      200    {object}  paymentListResponse
// @Router       /v1/payments [get]
func (h *LedgerHandler) ListPayments(c echo.Context) error {
	_, scope, err := ctxScope(c)
	if err != nil {
		return err
	}
	page, err := pageParams(c)
	if err != nil {
		return err
	}
	items, err := h.ledger.ListPayments(c.Request().Context(), scope, page)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*domain.Payment{}
	}
	return c.JSON(http.StatusOK, paymentListResponse{Items: items})
}

// GetPayment handles GET /v1/payments/:id.
//
// @Summary      Get a payment
// @Tags         ledger
// @Produce      json
// @Security     SessionCookie
// @Param        id   path      string  true  "Payment id"
// @Success      200  {object}  domain.Payment
// @Failure      404  {object}  map[string]string
// @Router       /v1/payments/{id} [get]
func (h *LedgerHandler) GetPayment(c echo.Context) error {
	_, scope, err := ctxScope(c)
	if err != nil {
		return err
	}
	p, err := h.ledger.GetPayment(c.Request().Context(), scope, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

// ListInvoices handles GET /v1/invoices.
//
// @Summary      List invoices
// @Tags         ledger
// @Produce      json
// @Security     SessionCookie
// @Param        page   query     int  false  "Page number (1-based)"
// @Param        limit  query     int  false  "Page size"
// @Success      200    {object}  invoiceListResponse
// @Router       /v1/invoices [get]
func (h *LedgerHandler) ListInvoices(c echo.Context) error {
	_, scope, err := ctxScope(c)
	if err != nil {
		return err
	}
	page, err := pageParams(c)
	if err != nil {
		return err
	}
	items, err := h.ledger.ListInvoices(c.Request().Context(), scope, page)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*domain.Invoice{}
	}
	return c.JSON(http.StatusOK, invoiceListResponse{Items: items})
}

// GetInvoice handles GET /v1/invoices/:id.
//
// @Summary      Get an invoice
// @Tags         ledger
// @Produce      json
// @Security     SessionCookie
// @Param        id   path      string  true  "Invoice id"
// @Success      200  {object}  domain.Invoice
// @Failure      404  {object}  map[string]string
// @Router       /v1/invoices/{id} [get]
func (h *LedgerHandler) GetInvoice(c echo.Context) error {
	_, scope, err := ctxScope(c)
	if err != nil {
		return err
	}
	inv, err := h.ledger.GetInvoice(c.Request().Context(), scope, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, inv)
}

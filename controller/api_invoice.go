package controller

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/billingcat/quickinvoice/model"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// ---- DTOs for invoices ----

type APIParty struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Country string `json:"country"`
}

type APIBank struct {
	BankName    string `json:"bank_name"`
	AccountName string `json:"account_name"`
	BIC         string `json:"bic"`
	IBAN        string `json:"iban"`
}

type APIInvoiceItem struct {
	Description string          `json:"description"`
	Quantity    int64           `json:"quantity" validate:"gte=0"`
	Price       decimal.Decimal `json:"price"`
}

// APILogo carries the logo inline, Data is base64 encoded in JSON.
type APILogo struct {
	Filename string `json:"filename"`
	Data     []byte `json:"data"`
}

// APIInvoiceRequest is the body of POST /api/v1/invoices. Items are printed
// in the order of the array.
type APIInvoiceRequest struct {
	InvoiceName   string           `json:"invoice_name" validate:"required"`
	InvoiceNumber string           `json:"invoice_number" validate:"required"`
	Date          string           `json:"date" validate:"required"`
	DueDate       string           `json:"due_date" validate:"required"`
	Business      APIParty         `json:"business"`
	Client        APIParty         `json:"client"`
	Bank          APIBank          `json:"bank"`
	Currency      string           `json:"currency"`
	CurrencyCode  string           `json:"currency_code"`
	TaxRate       decimal.Decimal  `json:"tax_rate"`
	Items         []APIInvoiceItem `json:"items" validate:"dive"`
	Logo          *APILogo         `json:"logo,omitempty"`
}

func (ctrl *controller) apiInit(e *echo.Echo) {
	api := e.Group("/api/v1")
	api.POST("/invoices", ctrl.apiInvoiceCreate)
}

// toInvoice converts the request into a model invoice with computed totals.
func (req *APIInvoiceRequest) toInvoice(cfg *model.Config) (*model.Invoice, error) {
	if err := model.Validate(req); err != nil {
		return nil, err
	}
	if req.Business.Name == "" {
		return nil, &model.ValidationError{Field: "business.name", Reason: "required"}
	}
	if req.Client.Name == "" {
		return nil, &model.ValidationError{Field: "client.name", Reason: "required"}
	}
	if err := model.CheckItemCount(len(req.Items), cfg.MaxLineItems); err != nil {
		return nil, err
	}
	date, err := model.ParseDate("date", req.Date)
	if err != nil {
		return nil, err
	}
	due, err := model.ParseDate("due_date", req.DueDate)
	if err != nil {
		return nil, err
	}

	inv := &model.Invoice{
		Name:         req.InvoiceName,
		Number:       model.FormatInvoiceNumber(req.InvoiceNumber),
		Date:         date,
		DueDate:      due,
		Business:     model.Party(req.Business),
		Client:       model.Party(req.Client),
		Bank:         model.BankDetails(req.Bank),
		Currency:     req.Currency,
		CurrencyCode: strings.TrimSpace(req.CurrencyCode),
		TaxRate:      req.TaxRate,
		Items:        make([]model.LineItem, len(req.Items)),
	}
	for i, it := range req.Items {
		inv.Items[i] = model.LineItem{
			Description: it.Description,
			Quantity:    it.Quantity,
			Price:       it.Price,
		}
	}
	inv.RecomputeTotals()
	return inv, nil
}

func (ctrl *controller) apiInvoiceCreate(c echo.Context) error {
	var req APIInvoiceRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return ErrInvalid(err, fmt.Sprintf("Cannot decode request body: %v", err))
	}
	inv, err := req.toInvoice(ctrl.cfg)
	if err != nil {
		return toAppError(err)
	}
	if req.Logo != nil {
		inv.Logo = model.AcceptLogo(ctrl.cfg.Upload, req.Logo.Filename, req.Logo.Data, ctrl.log(c))
	}
	return ctrl.sendInvoice(c, inv, c.QueryParam("format"))
}

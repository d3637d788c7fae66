package model

import (
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/form/v4"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// FieldLookup gives access to submitted form fields. url.Values implements
// it.
type FieldLookup interface {
	Has(key string) bool
	Get(key string) string
}

var (
	commaperiod = strings.NewReplacer(",", ".")
	formDecoder = newFormDecoder()
	validate    = newValidator()
)

// invoiceForm has all scalar fields of the invoice form. The line items are
// read by CollectLineItems.
type invoiceForm struct {
	InvoiceName     string    `form:"invoice_name" validate:"required"`
	InvoiceNumber   string    `form:"invoice_number" validate:"required"`
	Date            time.Time `form:"date" validate:"required"`
	DueDate         time.Time `form:"due_date" validate:"required"`
	BusinessName    string    `form:"business_name" validate:"required"`
	BusinessAddress string    `form:"business_address"`
	BusinessPhone   string    `form:"business_phone"`
	BusinessEmail   string    `form:"business_email"`
	BusinessCountry string    `form:"business_country"`
	ClientName      string    `form:"client_name" validate:"required"`
	ClientEmail     string    `form:"client_email"`
	ClientAddress   string    `form:"client_address"`
	ClientCountry   string    `form:"client_country"`
	BankName        string    `form:"bank_name"`
	AccountName     string    `form:"account_name"`
	BIC             string    `form:"bic"`
	IBAN            string    `form:"iban"`
	TaxRate         string    `form:"tax_rate" validate:"required"`
	Currency        string    `form:"currency"`
	CurrencyCode    string    `form:"currency_code"`
}

// requiredFields must be present in every submission, even if empty.
var requiredFields = []string{
	"invoice_name", "invoice_number", "date", "due_date",
	"business_name", "business_address", "business_phone", "business_email",
	"client_name", "client_email", "client_address",
	"bank_name", "account_name", "bic", "iban",
	"tax_rate", "currency",
}

func newFormDecoder() *form.Decoder {
	dec := form.NewDecoder()
	dec.RegisterCustomTypeFunc(func(vals []string) (interface{}, error) {
		return time.Parse(DateLayout, strings.TrimSpace(vals[0]))
	}, time.Time{})
	return dec
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if name := fld.Tag.Get("form"); name != "" {
			return name
		}
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the validate struct tags of v and turns the first
// violation into a ValidationError named after the form or json tag.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return fmt.Errorf("validate %T: %w", v, err)
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return invalid(fe.Field(), "required", err)
	case "gte", "min":
		return invalid(fe.Field(), "must be at least "+fe.Param(), err)
	case "max", "lte":
		return invalid(fe.Field(), "must be at most "+fe.Param(), err)
	}
	return invalid(fe.Field(), "failed "+fe.Tag(), err)
}

// ParseDate parses a YYYY-MM-DD date. field is used in the error.
func ParseDate(field, s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, invalid(field, "not a valid date (YYYY-MM-DD)", err)
	}
	return t, nil
}

// CheckItemCount returns a ValidationError if n exceeds max. A max of zero
// disables the check.
func CheckItemCount(n, max int) error {
	if max > 0 && n > max {
		return invalid("items", fmt.Sprintf("more than %d line items", max), nil)
	}
	return nil
}

// ParseInvoiceForm builds an invoice from the submitted form values. The
// logo is not part of the values and must be attached by the caller.
func ParseInvoiceForm(values url.Values, cfg *Config) (*Invoice, error) {
	for _, key := range requiredFields {
		if !values.Has(key) {
			return nil, invalid(key, "missing", nil)
		}
	}

	f := invoiceForm{}
	if err := formDecoder.Decode(&f, values); err != nil {
		return nil, decodeError(err)
	}
	if err := Validate(&f); err != nil {
		return nil, err
	}

	taxRate, err := decimal.NewFromString(commaperiod.Replace(strings.TrimSpace(f.TaxRate)))
	if err != nil {
		return nil, invalid("tax_rate", "not a number", err)
	}

	inv := &Invoice{
		Name:    f.InvoiceName,
		Number:  FormatInvoiceNumber(f.InvoiceNumber),
		Date:    f.Date,
		DueDate: f.DueDate,
		Business: Party{
			Name:    f.BusinessName,
			Address: f.BusinessAddress,
			Phone:   f.BusinessPhone,
			Email:   f.BusinessEmail,
			Country: f.BusinessCountry,
		},
		Client: Party{
			Name:    f.ClientName,
			Address: f.ClientAddress,
			Email:   f.ClientEmail,
			Country: f.ClientCountry,
		},
		Bank: BankDetails{
			BankName:    f.BankName,
			AccountName: f.AccountName,
			BIC:         f.BIC,
			IBAN:        f.IBAN,
		},
		Currency:     f.Currency,
		CurrencyCode: strings.TrimSpace(f.CurrencyCode),
		TaxRate:      taxRate,
	}

	if inv.Items, err = CollectLineItems(values, cfg.MaxLineItems); err != nil {
		return nil, err
	}
	inv.RecomputeTotals()
	return inv, nil
}

// decodeError turns the first (by field name) decoding problem into a
// ValidationError.
func decodeError(err error) error {
	derrs, ok := err.(form.DecodeErrors)
	if !ok || len(derrs) == 0 {
		return fmt.Errorf("decode invoice form: %w", err)
	}
	keys := make([]string, 0, len(derrs))
	for k := range derrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return invalid(keys[0], "not a valid date (YYYY-MM-DD)", derrs[keys[0]])
}

// CollectLineItems reads item_description_N, item_quantity_N and
// item_price_N for N = 1, 2, ... and stops at the first N without a
// description. Fields after a gap are never read. max limits the number of
// items, zero means no limit.
func CollectLineItems(f FieldLookup, max int) ([]LineItem, error) {
	var items []LineItem
	for i := 1; f.Has(fmt.Sprintf("item_description_%d", i)); i++ {
		if err := CheckItemCount(i, max); err != nil {
			return nil, err
		}
		it, err := readLineItem(f, i)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

func readLineItem(f FieldLookup, i int) (LineItem, error) {
	qtyField := fmt.Sprintf("item_quantity_%d", i)
	priceField := fmt.Sprintf("item_price_%d", i)

	qty, err := strconv.ParseInt(strings.TrimSpace(f.Get(qtyField)), 10, 64)
	if err != nil {
		return LineItem{}, invalid(qtyField, "not an integer", err)
	}
	if qty < 0 {
		return LineItem{}, invalid(qtyField, "must not be negative", nil)
	}
	price, err := decimal.NewFromString(commaperiod.Replace(strings.TrimSpace(f.Get(priceField))))
	if err != nil {
		return LineItem{}, invalid(priceField, "not a number", err)
	}
	return LineItem{
		Description: f.Get(fmt.Sprintf("item_description_%d", i)),
		Quantity:    qty,
		Price:       price,
		Amount:      price.Mul(decimal.NewFromInt(qty)),
	}, nil
}

// Package fixtures builds invoices, form submissions and images for tests.
package fixtures

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/billingcat/quickinvoice/model"
	"github.com/shopspring/decimal"
)

// Fixed dates: the due date is 14 days after the invoice date.
var (
	InvoiceDate = time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	DueDate     = time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)
)

// Config returns the default configuration with uploads in dir.
func Config(dir string) *model.Config {
	cfg := model.DefaultConfig()
	cfg.Mode = "development"
	cfg.CookieSecret = "test-secret-test-secret-test-secret"
	cfg.Upload.Dir = dir
	return cfg
}

// Item returns a line item, price is parsed as decimal.
func Item(description string, quantity int64, price string) model.LineItem {
	return model.LineItem{
		Description: description,
		Quantity:    quantity,
		Price:       decimal.RequireFromString(price),
	}
}

type InvoiceOption func(*model.Invoice)

func WithItems(items ...model.LineItem) InvoiceOption {
	return func(inv *model.Invoice) { inv.Items = items }
}

func WithTaxRate(rate string) InvoiceOption {
	return func(inv *model.Invoice) { inv.TaxRate = decimal.RequireFromString(rate) }
}

func WithDates(date, due time.Time) InvoiceOption {
	return func(inv *model.Invoice) {
		inv.Date = date
		inv.DueDate = due
	}
}

func WithLogo(logo *model.Logo) InvoiceOption {
	return func(inv *model.Invoice) { inv.Logo = logo }
}

func WithCurrency(currency string) InvoiceOption {
	return func(inv *model.Invoice) { inv.Currency = currency }
}

// Invoice returns a complete invoice with one widget line (2 × 9.99) and
// 10% tax. Totals are recomputed after the options are applied.
func Invoice(opts ...InvoiceOption) *model.Invoice {
	inv := &model.Invoice{
		Name:    "Acme Corp",
		Number:  "INV-042",
		Date:    InvoiceDate,
		DueDate: DueDate,
		Business: model.Party{
			Name:    "Acme Corp",
			Address: "1 Main St\nSpringfield",
			Phone:   "555-0100",
			Email:   "billing@acme.test",
			Country: "US",
		},
		Client: model.Party{
			Name:    "Globex",
			Address: "42 Elm Rd",
			Email:   "ap@globex.test",
			Country: "Germany",
		},
		Bank: model.BankDetails{
			BankName:    "First Bank",
			AccountName: "Acme Corp",
			BIC:         "FBNKUS33",
			IBAN:        "DE89370400440532013000",
		},
		Currency: "$",
		TaxRate:  decimal.NewFromInt(10),
		Items:    []model.LineItem{Item("Widget", 2, "9.99")},
	}
	for _, o := range opts {
		o(inv)
	}
	inv.RecomputeTotals()
	return inv
}

// FormValues returns a complete form submission matching Invoice() with the
// raw invoice number "42".
func FormValues() url.Values {
	return url.Values{
		"invoice_name":       {"Acme Corp"},
		"invoice_number":     {"42"},
		"date":               {InvoiceDate.Format(model.DateLayout)},
		"due_date":           {DueDate.Format(model.DateLayout)},
		"business_name":      {"Acme Corp"},
		"business_address":   {"1 Main St"},
		"business_phone":     {"555-0100"},
		"business_email":     {"billing@acme.test"},
		"client_name":        {"Globex"},
		"client_email":       {"ap@globex.test"},
		"client_address":     {"42 Elm Rd"},
		"bank_name":          {"First Bank"},
		"account_name":       {"Acme Corp"},
		"bic":                {"FBNKUS33"},
		"iban":               {"DE89370400440532013000"},
		"tax_rate":           {"10"},
		"currency":           {"$"},
		"item_description_1": {"Widget"},
		"item_quantity_1":    {"2"},
		"item_price_1":       {"9.99"},
	}
}

// AddItem sets the fields of line item i.
func AddItem(v url.Values, i int, description string, quantity int64, price string) {
	n := strconv.Itoa(i)
	v.Set("item_description_"+n, description)
	v.Set("item_quantity_"+n, strconv.FormatInt(quantity, 10))
	v.Set("item_price_"+n, price)
}

// PNG returns a small encoded PNG image.
func PNG(t testing.TB) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: 0x1a, G: 0x73, B: 0xe8, A: 0xff})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

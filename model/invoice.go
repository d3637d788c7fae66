package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceNumberPrefix is put in front of every invoice number.
const InvoiceNumberPrefix = "INV-"

// DateLayout is the format of all date fields (HTML date input).
const DateLayout = "2006-01-02"

// Invoice is built fresh for every request and handed to one of the
// renderers.
type Invoice struct {
	Name     string
	Number   string
	Date     time.Time
	DueDate  time.Time
	Business Party
	Client   Party
	Bank     BankDetails
	Currency string
	TaxRate  decimal.Decimal
	Items    []LineItem
	Logo     *Logo

	// CurrencyCode is the optional ISO 4217 code. Currency is only the
	// symbol printed in front of amounts.
	CurrencyCode string

	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// Party is either the issuing business or the billed client. The client
// has no phone number on the form.
type Party struct {
	Name    string
	Address string
	Phone   string
	Email   string
	Country string
}

// BankDetails are printed in the payment section.
type BankDetails struct {
	BankName    string
	AccountName string
	BIC         string
	IBAN        string
}

// LineItem contains one line in the invoice
type LineItem struct {
	Description string
	Quantity    int64
	Price       decimal.Decimal
	Amount      decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// RecomputeTotals sets the amount of every line item and the subtotal, tax
// and total of the invoice.
func (inv *Invoice) RecomputeTotals() {
	subtotal := decimal.Zero
	for i := range inv.Items {
		it := &inv.Items[i]
		it.Amount = it.Price.Mul(decimal.NewFromInt(it.Quantity))
		subtotal = subtotal.Add(it.Amount)
	}
	inv.Subtotal = subtotal
	inv.Tax = subtotal.Mul(inv.TaxRate).Div(hundred)
	inv.Total = subtotal.Add(inv.Tax)
}

// FormatInvoiceNumber normalizes a user supplied invoice number to
// "INV-" followed by the last dash separated segment, padded with zeros to
// at least three characters. The segment is not required to be numeric.
func FormatInvoiceNumber(raw string) string {
	if !strings.HasPrefix(raw, InvoiceNumberPrefix) {
		raw = InvoiceNumberPrefix + raw
	}
	suffix := raw[strings.LastIndex(raw, "-")+1:]
	if n := len(suffix); n < 3 {
		suffix = strings.Repeat("0", 3-n) + suffix
	}
	return InvoiceNumberPrefix + suffix
}

// FormatMoney prints the amount with two decimals, prefixed with the
// currency symbol.
func FormatMoney(currency string, amount decimal.Decimal) string {
	return currency + amount.StringFixed(2)
}

// DaysUntilDue returns the number of calendar days between the invoice date
// and the due date. It is negative if the due date lies before the invoice
// date.
func DaysUntilDue(date, due time.Time) int {
	d0 := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	d1 := time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, time.UTC)
	// time.Duration overflows after about 292 years
	return int((d1.Unix() - d0.Unix()) / 86400)
}

// DueMessage is the sentence printed below the footer.
func DueMessage(date, due time.Time) string {
	days := DaysUntilDue(date, due)
	switch {
	case days == 0:
		return "Payment is due today."
	case days == 1:
		return "Payment is due tomorrow."
	case days > 1:
		return fmt.Sprintf("Payment is due within %d days.", days)
	default:
		return "Payment is overdue."
	}
}

// Filename returns the name of the downloaded file for the given extension,
// for example "invoice_Acme_Corp_INV-042.pdf".
func (inv *Invoice) Filename(ext string) string {
	return fmt.Sprintf("invoice_%s_%s.%s", strings.ReplaceAll(inv.Name, " ", "_"), inv.Number, ext)
}

// checkDates makes sure both dates are set. Renderers call it before they
// produce any output.
func (inv *Invoice) checkDates() error {
	if inv.Date.IsZero() {
		return invalid("date", "not a valid date (YYYY-MM-DD)", nil)
	}
	if inv.DueDate.IsZero() {
		return invalid("due_date", "not a valid date (YYYY-MM-DD)", nil)
	}
	return nil
}

package model_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/billingcat/quickinvoice/fixtures"
	"github.com/billingcat/quickinvoice/model"
)

func TestWriteZUGFeRDXML(t *testing.T) {
	var buf bytes.Buffer
	if err := model.WriteZUGFeRDXML(fixtures.Invoice(), &buf, "DE"); err != nil {
		t.Fatalf("WriteZUGFeRDXML: %v", err)
	}
	out := buf.Bytes()
	for _, want := range []string{
		"INV-042", "Acme Corp", "Globex", "DE89370400440532013000", "FBNKUS33", "Widget", "19.98",
		"<ram:InvoiceCurrencyCode>USD</ram:InvoiceCurrencyCode>",
	} {
		if !bytes.Contains(out, []byte(want)) {
			t.Errorf("XML does not contain %q", want)
		}
	}
}

func TestWriteZUGFeRDXML_ZeroTax(t *testing.T) {
	var buf bytes.Buffer
	inv := fixtures.Invoice(fixtures.WithTaxRate("0"))
	if err := model.WriteZUGFeRDXML(inv, &buf, "DE"); err != nil {
		t.Fatalf("WriteZUGFeRDXML: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("no XML written")
	}
}

func TestWriteZUGFeRDXML_MissingDate(t *testing.T) {
	var buf bytes.Buffer
	inv := fixtures.Invoice(fixtures.WithDates(time.Time{}, fixtures.DueDate))
	err := model.WriteZUGFeRDXML(inv, &buf, "DE")
	if !model.IsValidationError(err) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestInvoice_CurrencyISO(t *testing.T) {
	tests := []struct {
		symbol string
		code   string
		want   string
	}{
		{"$", "", "USD"},
		{"€", "", "EUR"},
		{"CHF ", "", "CHF"},
		{"eur", "", "EUR"},
		{"$", "cad", "CAD"},
		{"Ø", "NOK", "NOK"},
	}
	for _, tc := range tests {
		inv := fixtures.Invoice(fixtures.WithCurrency(tc.symbol))
		inv.CurrencyCode = tc.code
		got, err := inv.CurrencyISO()
		if err != nil {
			t.Errorf("CurrencyISO(%q, %q): %v", tc.symbol, tc.code, err)
			continue
		}
		if got != tc.want {
			t.Errorf("CurrencyISO(%q, %q) = %q, want %q", tc.symbol, tc.code, got, tc.want)
		}
	}
}

func TestInvoice_CurrencyISOUnknown(t *testing.T) {
	for _, inv := range []*model.Invoice{
		fixtures.Invoice(fixtures.WithCurrency("Ø")),
		fixtures.Invoice(fixtures.WithCurrency("")),
	} {
		if _, err := inv.CurrencyISO(); !model.IsValidationError(err) {
			t.Errorf("CurrencyISO(%q): err = %v, want ValidationError", inv.Currency, err)
		}
	}

	inv := fixtures.Invoice()
	inv.CurrencyCode = "QQQ"
	if _, err := inv.CurrencyISO(); !model.IsValidationError(err) {
		t.Errorf("CurrencyISO with code QQQ: err = %v, want ValidationError", err)
	}
	var buf bytes.Buffer
	if err := model.WriteZUGFeRDXML(inv, &buf, "DE"); !model.IsValidationError(err) {
		t.Errorf("WriteZUGFeRDXML: err = %v, want ValidationError", err)
	}
	if buf.Len() != 0 {
		t.Error("XML written despite invalid currency code")
	}
}

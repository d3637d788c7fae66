package model

import (
	"fmt"
	"io"
	"strings"

	"github.com/biter777/countries"
	"github.com/shopspring/decimal"
	"github.com/speedata/einvoice"
	"golang.org/x/text/currency"
)

// countryID returns the two letter alpha code for the given country name or
// code. Unknown and empty values result in defaultCountry.
func countryID(country, defaultCountry string) string {
	c := countries.ByName(strings.TrimSpace(country))
	if c == countries.Unknown {
		return defaultCountry
	}
	return c.Alpha2()
}

// addressLines splits a multi line address into the first line and the
// rest joined by ", ".
func addressLines(address string) (string, string) {
	var lines []string
	for _, l := range strings.Split(strings.ReplaceAll(address, "\r\n", "\n"), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	switch len(lines) {
	case 0:
		return "", ""
	case 1:
		return lines[0], ""
	}
	return lines[0], strings.Join(lines[1:], ", ")
}

// currencySymbols maps the symbols offered on the form to ISO 4217 units.
var currencySymbols = map[string]currency.Unit{
	"$":   currency.USD,
	"US$": currency.USD,
	"€":   currency.EUR,
	"£":   currency.GBP,
	"¥":   currency.JPY,
	"₹":   currency.INR,
	"Fr.": currency.CHF,
	"zł":  currency.PLN,
	"kr":  currency.SEK,
	"R$":  currency.BRL,
	"C$":  currency.CAD,
	"A$":  currency.AUD,
}

// CurrencyISO returns the ISO 4217 code of the invoice currency. An explicit
// CurrencyCode wins; otherwise the display symbol is mapped or, if it
// already is a code like "CHF ", parsed.
func (inv *Invoice) CurrencyISO() (string, error) {
	if inv.CurrencyCode != "" {
		u, err := currency.ParseISO(inv.CurrencyCode)
		if err != nil {
			return "", invalid("currency_code", "not an ISO 4217 currency code", err)
		}
		return u.String(), nil
	}
	sym := strings.TrimSpace(inv.Currency)
	if u, ok := currencySymbols[sym]; ok {
		return u.String(), nil
	}
	if u, err := currency.ParseISO(sym); err == nil {
		return u.String(), nil
	}
	return "", invalid("currency_code", fmt.Sprintf("cannot derive an ISO 4217 code from %q", inv.Currency), nil)
}

func taxCategory(rate decimal.Decimal) string {
	if rate.IsZero() {
		return "Z"
	}
	return "S"
}

// WriteZUGFeRDXML writes the invoice as ZUGFeRD / Factur-X XML (profile
// EN 16931) to w.
func WriteZUGFeRDXML(inv *Invoice, w io.Writer, defaultCountry string) error {
	if err := inv.checkDates(); err != nil {
		return err
	}
	code, err := inv.CurrencyISO()
	if err != nil {
		return err
	}
	sellerLine1, sellerLine2 := addressLines(inv.Business.Address)
	buyerLine1, buyerLine2 := addressLines(inv.Client.Address)

	zi := einvoice.Invoice{
		InvoiceNumber:       inv.Number,
		InvoiceTypeCode:     380,
		Profile:             einvoice.CProfileEN16931,
		InvoiceDate:         inv.Date,
		InvoiceCurrencyCode: code,
		TaxCurrencyCode:     code,
		Notes: []einvoice.Note{{
			Text: inv.Name,
		}},
		Seller: einvoice.Party{
			Name: inv.Business.Name,
			PostalAddress: &einvoice.PostalAddress{
				Line1:     sellerLine1,
				Line2:     sellerLine2,
				CountryID: countryID(inv.Business.Country, defaultCountry),
			},
			DefinedTradeContact: []einvoice.DefinedTradeContact{{
				PersonName: inv.Business.Name,
				EMail:      inv.Business.Email,
			}},
		},
		Buyer: einvoice.Party{
			Name: inv.Client.Name,
			PostalAddress: &einvoice.PostalAddress{
				Line1:     buyerLine1,
				Line2:     buyerLine2,
				CountryID: countryID(inv.Client.Country, defaultCountry),
			},
			DefinedTradeContact: []einvoice.DefinedTradeContact{{
				PersonName: inv.Client.Name,
				EMail:      inv.Client.Email,
			}},
		},
		PaymentMeans: []einvoice.PaymentMeans{
			{
				TypeCode:                                      58, // SEPA credit transfer
				PayeePartyCreditorFinancialAccountIBAN:        inv.Bank.IBAN,
				PayeePartyCreditorFinancialAccountName:        inv.Bank.AccountName,
				PayeeSpecifiedCreditorFinancialInstitutionBIC: inv.Bank.BIC,
			},
		},
		SpecifiedTradePaymentTerms: []einvoice.SpecifiedTradePaymentTerms{{
			DueDate: inv.DueDate,
		}},
	}

	for i, it := range inv.Items {
		zi.InvoiceLines = append(zi.InvoiceLines, einvoice.InvoiceLine{
			LineID:                   fmt.Sprintf("%d", i+1),
			ItemName:                 it.Description,
			BilledQuantity:           decimal.NewFromInt(it.Quantity),
			BilledQuantityUnit:       "C62",
			NetPrice:                 it.Price,
			TaxRateApplicablePercent: inv.TaxRate,
			Total:                    it.Amount,
			TaxTypeCode:              "VAT",
			TaxCategoryCode:          taxCategory(inv.TaxRate),
		})
	}
	zi.UpdateApplicableTradeTax(map[string]string{})
	zi.UpdateTotals()

	if err := zi.Write(w); err != nil {
		return fmt.Errorf("write ZUGFeRD XML for %s: %w", inv.Number, err)
	}
	return nil
}

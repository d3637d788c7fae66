package controller

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/billingcat/quickinvoice/fixtures"
	"github.com/labstack/echo/v4"
	"github.com/xuri/excelize/v2"
)

func newTestServer(t *testing.T) *echo.Echo {
	t.Helper()
	cfg := fixtures.Config(t.TempDir())
	return newServer(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// csrfToken fetches the form and returns the CSRF cookie.
func csrfToken(t *testing.T, e *echo.Echo) *http.Cookie {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/create-invoice", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /create-invoice: status %d", rec.Code)
	}
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == "csrf" {
			return ck
		}
	}
	t.Fatal("no csrf cookie set")
	return nil
}

func postForm(t *testing.T, e *echo.Echo, values url.Values, accept string) *httptest.ResponseRecorder {
	t.Helper()
	ck := csrfToken(t, e)
	values.Set("csrf", ck.Value)
	req := httptest.NewRequest(http.MethodPost, "/create-invoice", strings.NewReader(values.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	if accept != "" {
		req.Header.Set(echo.HeaderAccept, accept)
	}
	req.AddCookie(ck)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	e := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("GET /healthz = %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(echo.HeaderXRequestID) == "" {
		t.Error("no request id")
	}
}

func TestPages(t *testing.T) {
	e := newTestServer(t)
	tests := []struct {
		path string
		want string
	}{
		{"/", `href="/create-invoice"`},
		{"/create-invoice", `name="item_description_1"`},
		{"/create-invoice/", `name="csrf"`},
	}
	for _, tc := range tests {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s: status %d", tc.path, rec.Code)
			continue
		}
		if !strings.Contains(rec.Body.String(), tc.want) {
			t.Errorf("GET %s: body does not contain %q", tc.path, tc.want)
		}
	}
}

func TestCreateInvoicePDF(t *testing.T) {
	e := newTestServer(t)
	rec := postForm(t, e, fixtures.FormValues(), "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "application/pdf" {
		t.Errorf("Content-Type = %q", ct)
	}
	cd := rec.Header().Get(echo.HeaderContentDisposition)
	if !strings.HasPrefix(cd, "attachment") || !strings.Contains(cd, "invoice_Acme_Corp_INV-042.pdf") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")) {
		t.Error("body is not a PDF")
	}
}

func TestCreateInvoiceWithLogo(t *testing.T) {
	e := newTestServer(t)
	ck := csrfToken(t, e)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	values := fixtures.FormValues()
	values.Set("csrf", ck.Value)
	for k, vs := range values {
		for _, v := range vs {
			if err := mw.WriteField(k, v); err != nil {
				t.Fatal(err)
			}
		}
	}
	fw, err := mw.CreateFormFile("logo", "logo.png")
	if err != nil {
		t.Fatal(err)
	}
	if _, err = fw.Write(fixtures.PNG(t)); err != nil {
		t.Fatal(err)
	}
	if err = mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/create-invoice", &body)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	req.AddCookie(ck)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("/Subtype /Image")) {
		t.Error("logo not embedded")
	}
}

func TestCreateInvoiceFormats(t *testing.T) {
	tests := []struct {
		format      string
		contentType string
		filename    string
	}{
		{"xml", "application/xml", "invoice_Acme_Corp_INV-042.xml"},
		{"xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "invoice_Acme_Corp_INV-042.xlsx"},
		{"PDF", "application/pdf", "invoice_Acme_Corp_INV-042.pdf"},
	}
	for _, tc := range tests {
		t.Run(tc.format, func(t *testing.T) {
			e := newTestServer(t)
			v := fixtures.FormValues()
			v.Set("format", tc.format)
			rec := postForm(t, e, v, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
			}
			if ct := rec.Header().Get(echo.HeaderContentType); ct != tc.contentType {
				t.Errorf("Content-Type = %q, want %q", ct, tc.contentType)
			}
			if cd := rec.Header().Get(echo.HeaderContentDisposition); !strings.Contains(cd, tc.filename) {
				t.Errorf("Content-Disposition = %q, want %q", cd, tc.filename)
			}
		})
	}
}

func TestCreateInvoiceXMLCurrencyCode(t *testing.T) {
	e := newTestServer(t)
	v := fixtures.FormValues()
	v.Set("format", "xml")
	v.Set("currency", "€")
	v.Set("currency_code", "eur")
	rec := postForm(t, e, v, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "<ram:InvoiceCurrencyCode>EUR</ram:InvoiceCurrencyCode>") {
		t.Error("XML does not carry currency code EUR")
	}
}

func TestCreateInvoiceErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(url.Values)
		want   string
	}{
		{"missing field", func(v url.Values) { v.Del("bank_name") }, "bank_name: missing"},
		{"bad date", func(v url.Values) { v.Set("date", "yesterday") }, "date: not a valid date"},
		{"bad quantity", func(v url.Values) { v.Set("item_quantity_1", "2.5") }, "item_quantity_1: not an integer"},
		{"unknown format", func(v url.Values) { v.Set("format", "docx") }, "format: unknown format"},
		{"xml without currency code", func(v url.Values) {
			v.Set("format", "xml")
			v.Set("currency", "Ø")
		}, "currency_code: cannot derive"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestServer(t)
			v := fixtures.FormValues()
			tc.modify(v)
			rec := postForm(t, e, v, echo.MIMEApplicationJSON)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			var res struct {
				Error     string `json:"error"`
				ErrorCode string `json:"error_code"`
				RequestID string `json:"request_id"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
				t.Fatalf("invalid JSON %q: %v", rec.Body.String(), err)
			}
			if res.ErrorCode != "INVALID_INPUT" {
				t.Errorf("error_code = %q", res.ErrorCode)
			}
			if !strings.HasPrefix(res.Error, tc.want) {
				t.Errorf("error = %q, want prefix %q", res.Error, tc.want)
			}
			if res.RequestID == "" {
				t.Error("request_id missing")
			}
		})
	}
}

func TestCreateInvoiceErrorRedirectsBrowser(t *testing.T) {
	e := newTestServer(t)
	v := fixtures.FormValues()
	v.Set("due_date", "")
	rec := postForm(t, e, v, "text/html,application/xhtml+xml")

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if loc := rec.Header().Get(echo.HeaderLocation); loc != "/create-invoice" {
		t.Errorf("Location = %q", loc)
	}
	var session bool
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == "session" {
			session = true
		}
	}
	if !session {
		t.Error("flash message was not stored in the session")
	}
}

func TestSecureCookies(t *testing.T) {
	for _, secure := range []bool{false, true} {
		cfg := fixtures.Config(t.TempDir())
		cfg.Mode = "production"
		cfg.SecureCookies = secure
		e := newServer(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
		ck := csrfToken(t, e)
		if ck.Secure != secure {
			t.Errorf("SecureCookies = %v: csrf cookie Secure = %v", secure, ck.Secure)
		}
	}
}

func TestCreateInvoiceRequiresCSRF(t *testing.T) {
	e := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/create-invoice", strings.NewReader(fixtures.FormValues().Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code == http.StatusOK {
		t.Fatal("form accepted without CSRF token")
	}
}

func apiRequest(t *testing.T, e *echo.Echo, query string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices"+query, bytes.NewReader(data))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func apiBody() map[string]any {
	return map[string]any{
		"invoice_name":   "Acme Corp",
		"invoice_number": "7",
		"date":           "2024-03-01",
		"due_date":       "2024-03-31",
		"business":       map[string]any{"name": "Acme Corp", "country": "US"},
		"client":         map[string]any{"name": "Globex", "country": "Germany"},
		"currency":       "$",
		"tax_rate":       "19",
		"items": []map[string]any{
			{"description": "Zeta", "quantity": 1, "price": "3"},
			{"description": "Alpha", "quantity": 2, "price": "1.50"},
			{"description": "Mu", "quantity": 3, "price": 2},
		},
	}
}

func TestAPICreateInvoice(t *testing.T) {
	e := newTestServer(t)
	rec := apiRequest(t, e, "", apiBody())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if cd := rec.Header().Get(echo.HeaderContentDisposition); !strings.Contains(cd, "invoice_Acme_Corp_INV-007.pdf") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")) {
		t.Error("body is not a PDF")
	}
}

func TestAPICreateInvoiceKeepsItemOrder(t *testing.T) {
	e := newTestServer(t)
	rec := apiRequest(t, e, "?format=xlsx", apiBody())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	f, err := excelize.OpenReader(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	for cell, want := range map[string]string{"A9": "Zeta", "A10": "Alpha", "A11": "Mu"} {
		got, err := f.GetCellValue("Invoice", cell)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("%s = %q, want %q", cell, got, want)
		}
	}
	// 3 + 3 + 6 = 12, 19% tax
	if got, _ := f.GetCellValue("Invoice", "D15", excelize.Options{RawCellValue: true}); got != "14.28" {
		t.Errorf("total = %q, want 14.28", got)
	}
}

func TestAPICreateInvoiceErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(map[string]any)
		want   string
	}{
		{"missing name", func(b map[string]any) { delete(b, "invoice_name") }, "invoice_name: required"},
		{"bad date", func(b map[string]any) { b["due_date"] = "31.03.2024" }, "due_date: not a valid date"},
		{"no client", func(b map[string]any) { delete(b, "client") }, "client.name: required"},
		{"negative quantity", func(b map[string]any) {
			b["items"] = []map[string]any{{"description": "X", "quantity": -1, "price": "1"}}
		}, "quantity: must be at least 0"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestServer(t)
			body := apiBody()
			tc.modify(body)
			rec := apiRequest(t, e, "", body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (%s)", rec.Code, rec.Body.String())
			}
			var res map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
				t.Fatal(err)
			}
			if msg, _ := res["error"].(string); !strings.HasPrefix(msg, tc.want) {
				t.Errorf("error = %q, want prefix %q", msg, tc.want)
			}
		})
	}
}

func TestAPICreateInvoiceBadJSON(t *testing.T) {
	e := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices", strings.NewReader("{"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

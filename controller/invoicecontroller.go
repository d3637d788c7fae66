package controller

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/billingcat/quickinvoice/model"
	"github.com/labstack/echo/v4"
)

const previewDPI = 96

// exportFormat describes one download format of an invoice.
type exportFormat struct {
	ext         string
	contentType string
}

var exportFormats = map[string]exportFormat{
	"pdf":  {ext: "pdf", contentType: "application/pdf"},
	"xml":  {ext: "xml", contentType: "application/xml"},
	"xlsx": {ext: "xlsx", contentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
	"png":  {ext: "png", contentType: "image/png"},
}

func (ctrl *controller) invoiceInit(e *echo.Echo) {
	e.GET("/create-invoice", ctrl.invoiceForm)
	e.POST("/create-invoice", ctrl.invoiceCreate)
}

func (ctrl *controller) invoiceForm(c echo.Context) error {
	m := ctrl.defaultResponseMap(c, "Create invoice")
	accept := make([]string, len(ctrl.cfg.Upload.AllowedExtensions))
	for i, ext := range ctrl.cfg.Upload.AllowedExtensions {
		accept[i] = "." + ext
	}
	m["accept"] = strings.Join(accept, ",")
	m["defaultcountry"] = ctrl.cfg.DefaultCountry
	return c.Render(http.StatusOK, "invoice.html", m)
}

func (ctrl *controller) invoiceCreate(c echo.Context) error {
	values, err := c.FormParams()
	if err != nil {
		return ErrInvalid(err, "Cannot read the submitted form.")
	}
	inv, err := model.ParseInvoiceForm(values, ctrl.cfg)
	if err != nil {
		return toAppError(err)
	}
	inv.Logo = ctrl.readLogo(c)
	return ctrl.sendInvoice(c, inv, values.Get("format"))
}

// readLogo returns the uploaded logo or nil. A missing or unusable upload
// does not fail the request.
func (ctrl *controller) readLogo(c echo.Context) *model.Logo {
	fh, err := c.FormFile("logo")
	if err != nil {
		return nil
	}
	f, err := fh.Open()
	if err != nil {
		ctrl.log(c).Warn("cannot open logo upload", "error", err)
		return nil
	}
	defer f.Close()

	var r io.Reader = f
	if max := ctrl.cfg.Upload.MaxLogoBytes; max > 0 {
		// one byte more so AcceptLogo can see that the limit is exceeded
		r = io.LimitReader(f, max+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		ctrl.log(c).Warn("cannot read logo upload", "error", err)
		return nil
	}
	return model.AcceptLogo(ctrl.cfg.Upload, fh.Filename, data, ctrl.log(c))
}

// renderInvoice returns the invoice in the requested format. An empty
// format is PDF.
func (ctrl *controller) renderInvoice(inv *model.Invoice, format string) ([]byte, exportFormat, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "pdf"
	}
	ef, ok := exportFormats[format]
	if !ok {
		return nil, ef, &model.ValidationError{Field: "format", Reason: fmt.Sprintf("unknown format %q", format)}
	}

	var buf bytes.Buffer
	var err error
	switch format {
	case "pdf", "png":
		err = model.RenderPDF(inv, &buf, model.RenderOptions{Compress: true, Creator: ctrl.cfg.Creator})
	case "xml":
		err = model.WriteZUGFeRDXML(inv, &buf, ctrl.cfg.DefaultCountry)
	case "xlsx":
		err = model.WriteXLSX(inv, &buf)
	}
	if err != nil {
		return nil, ef, err
	}
	if format == "png" {
		data, err := renderPDFToPNG(buf.Bytes(), previewDPI)
		return data, ef, err
	}
	return buf.Bytes(), ef, nil
}

func (ctrl *controller) sendInvoice(c echo.Context, inv *model.Invoice, format string) error {
	data, ef, err := ctrl.renderInvoice(inv, format)
	if err != nil {
		return toAppError(err)
	}
	filename := inv.Filename(ef.ext)
	ctrl.log(c).Info("invoice created", "number", inv.Number, "items", len(inv.Items), "format", ef.ext, "bytes", len(data))
	c.Response().Header().Set(echo.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	return c.Blob(http.StatusOK, ef.contentType, data)
}

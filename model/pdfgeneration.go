package model

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"codeberg.org/go-pdf/fpdf"
)

const inch = 72.0 // points

// RenderOptions control the PDF output. The zero value is usable.
type RenderOptions struct {
	Compress bool
	Creator  string
	// Now returns the creation date written to the document. Defaults to
	// time.Now.
	Now func() time.Time
}

type rgb struct{ r, g, b int }

var (
	colorText   = rgb{0x33, 0x33, 0x33}
	colorBlack  = rgb{0, 0, 0}
	colorWhite  = rgb{0xff, 0xff, 0xff}
	colorAccent = rgb{0x1a, 0x73, 0xe8}
	colorPanel  = rgb{0xf3, 0xf3, 0xf3}
	colorGrid   = rgb{0xdd, 0xdd, 0xdd}
)

// line is printed as Bold followed by Text in the regular font.
type line struct {
	Bold string
	Text string
}

// document has every string that ends up in the PDF, in reading order.
type document struct {
	Title      string
	Number     string
	Business   []line
	Client     []line
	MetaLeft   line
	MetaRight  []line
	ItemHeader [4]string
	Items      [][4]string
	Totals     [][2]string
	Payment    []line
	Footer     string
	DueMessage string
}

var itemColumns = [4]float64{4 * inch, 1 * inch, 1 * inch, 1 * inch}

func textLines(prefix, s string) []line {
	var out []line
	for _, l := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n") {
		out = append(out, line{Text: prefix + strings.TrimSpace(l)})
		prefix = ""
	}
	return out
}

func buildDocument(inv *Invoice) (*document, error) {
	if err := inv.checkDates(); err != nil {
		return nil, err
	}
	doc := &document{
		Title:      inv.Name,
		Number:     inv.Number,
		MetaLeft:   line{Bold: "Invoice #: ", Text: inv.Number},
		ItemHeader: [4]string{"Description", "Quantity", "Price", "Amount"},
		Footer:     "Thank you for your business!",
		DueMessage: DueMessage(inv.Date, inv.DueDate),
	}

	doc.Business = append(doc.Business, line{Bold: inv.Business.Name})
	doc.Business = append(doc.Business, textLines("", inv.Business.Address)...)
	doc.Business = append(doc.Business,
		line{Text: "Phone: " + inv.Business.Phone},
		line{Text: "Email: " + inv.Business.Email})

	doc.Client = append(doc.Client, line{Bold: "Bill To:"}, line{Text: inv.Client.Name})
	doc.Client = append(doc.Client, textLines("", inv.Client.Address)...)
	doc.Client = append(doc.Client, line{Text: "Email: " + inv.Client.Email})

	doc.MetaRight = []line{
		{Bold: "Date: ", Text: inv.Date.Format(DateLayout)},
		{Bold: "Due Date: ", Text: inv.DueDate.Format(DateLayout)},
	}

	for _, it := range inv.Items {
		doc.Items = append(doc.Items, [4]string{
			it.Description,
			strconv.FormatInt(it.Quantity, 10),
			FormatMoney(inv.Currency, it.Price),
			FormatMoney(inv.Currency, it.Amount),
		})
	}

	doc.Totals = [][2]string{
		{"Subtotal", FormatMoney(inv.Currency, inv.Subtotal)},
		{fmt.Sprintf("Tax (%s%%)", inv.TaxRate.String()), FormatMoney(inv.Currency, inv.Tax)},
		{"Total", FormatMoney(inv.Currency, inv.Total)},
	}

	doc.Payment = []line{
		{Bold: "Payment Details:"},
		{Text: "Bank: " + inv.Bank.BankName},
		{Text: "Account Name: " + inv.Bank.AccountName},
		{Text: "BIC: " + inv.Bank.BIC},
		{Text: "IBAN: " + inv.Bank.IBAN},
	}
	return doc, nil
}

// pdfWriter keeps the fpdf instance together with the cp1252 translator and
// the page geometry.
type pdfWriter struct {
	pdf    *fpdf.Fpdf
	tr     func(string) string
	left   float64
	top    float64
	width  float64
	bottom float64 // lowest usable y
}

func (w *pdfWriter) font(style string, size float64, c rgb) {
	w.pdf.SetFont("Helvetica", style, size)
	w.pdf.SetTextColor(c.r, c.g, c.b)
}

// ensureSpace starts a new page when h points do not fit on the current
// one. It returns true if a page was added.
func (w *pdfWriter) ensureSpace(h float64) bool {
	if w.pdf.GetY()+h <= w.bottom {
		return false
	}
	w.pdf.AddPage()
	w.pdf.SetXY(w.left, w.top)
	return true
}

func (w *pdfWriter) skip(h float64) {
	w.pdf.SetXY(w.left, w.pdf.GetY()+h)
}

// richLine prints l at (x, y) within width, aligned L, C or R.
func (w *pdfWriter) richLine(x, y, width, h float64, l line, align string, size float64, c rgb) {
	bold := w.tr(l.Bold)
	w.font("B", size, c)
	bw := w.pdf.GetStringWidth(bold)
	w.font("", size, c)
	text := w.tr(w.fit(l.Text, width-bw))
	tw := w.pdf.GetStringWidth(text)

	switch align {
	case "R":
		x += width - bw - tw
	case "C":
		x += (width - bw - tw) / 2
	}
	w.pdf.SetXY(x, y)
	if bold != "" {
		w.font("B", size, c)
		w.pdf.CellFormat(bw, h, bold, "", 0, "L", false, 0, "")
	}
	if text != "" {
		w.font("", size, c)
		w.pdf.CellFormat(tw, h, text, "", 0, "L", false, 0, "")
	}
}

// wrap breaks text into lines no wider than width in the current font.
func (w *pdfWriter) wrap(text string, width float64) []string {
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		var words []string
		for _, word := range strings.Fields(para) {
			words = append(words, w.breakWord(word, width)...)
		}
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		cur := words[0]
		for _, word := range words[1:] {
			if w.pdf.GetStringWidth(w.tr(cur+" "+word)) <= width {
				cur += " " + word
				continue
			}
			lines = append(lines, cur)
			cur = word
		}
		lines = append(lines, cur)
	}
	return lines
}

// breakWord splits a word wider than width into pieces that fit.
func (w *pdfWriter) breakWord(word string, width float64) []string {
	if w.pdf.GetStringWidth(w.tr(word)) <= width {
		return []string{word}
	}
	var pieces []string
	runes := []rune(word)
	start := 0
	for i := 1; i <= len(runes); i++ {
		if i-start > 1 && w.pdf.GetStringWidth(w.tr(string(runes[start:i]))) > width {
			pieces = append(pieces, string(runes[start:i-1]))
			start = i - 1
		}
	}
	return append(pieces, string(runes[start:]))
}

// fit shortens text with an ellipsis until it is no wider than width.
func (w *pdfWriter) fit(text string, width float64) string {
	if w.pdf.GetStringWidth(w.tr(text)) <= width {
		return text
	}
	runes := []rune(text)
	for n := len(runes) - 1; n > 0; n-- {
		s := strings.TrimRight(string(runes[:n]), " ") + "..."
		if w.pdf.GetStringWidth(w.tr(s)) <= width {
			return s
		}
	}
	return "..."
}

// wrapLines wraps the regular text of every line. Lines with a bold part
// are kept on one row.
func (w *pdfWriter) wrapLines(in []line, width, size float64) []line {
	w.font("", size, colorBlack)
	var out []line
	for _, l := range in {
		if l.Bold != "" {
			out = append(out, l)
			continue
		}
		for _, s := range w.wrap(l.Text, width) {
			out = append(out, line{Text: s})
		}
	}
	return out
}

// RenderPDF writes the invoice as a letter sized PDF to out. Nothing is
// written to out if rendering fails.
func RenderPDF(inv *Invoice, out io.Writer, opts RenderOptions) error {
	doc, err := buildDocument(inv)
	if err != nil {
		return err
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	pdf := fpdf.New("P", "pt", "Letter", "")
	pdf.SetMargins(0.5*inch, 0.5*inch, 0.5*inch)
	pdf.SetAutoPageBreak(false, 0.5*inch)
	pdf.SetCompression(opts.Compress)
	pdf.SetCreationDate(opts.Now())
	pdf.SetTitle(fmt.Sprintf("%s %s", inv.Name, inv.Number), true)
	pdf.SetAuthor(inv.Business.Name, true)
	if opts.Creator != "" {
		pdf.SetCreator(opts.Creator, true)
	}
	pageW, pageH := pdf.GetPageSize()
	w := &pdfWriter{
		pdf:    pdf,
		tr:     pdf.UnicodeTranslatorFromDescriptor(""),
		left:   0.5 * inch,
		top:    0.5 * inch,
		width:  pageW - inch,
		bottom: pageH - 0.5*inch,
	}
	pdf.AddPage()
	pdf.SetXY(w.left, w.top)

	w.header(doc)
	w.logo(inv.Logo)
	w.partyInfo(doc)
	w.metadata(doc)
	w.itemTable(doc)
	w.totals(doc)
	w.payment(doc)
	w.footer(doc)

	var buf bytes.Buffer
	if err = pdf.Output(&buf); err != nil {
		return fmt.Errorf("render invoice %s: %w", inv.Number, err)
	}
	_, err = out.Write(buf.Bytes())
	return err
}

func (w *pdfWriter) header(doc *document) {
	y := w.pdf.GetY()
	w.font("B", 20, colorBlack)
	w.pdf.SetXY(w.left, y)
	w.pdf.CellFormat(4*inch, 36, w.tr(w.fit(doc.Title, 4*inch-2*w.pdf.GetCellMargin())), "", 0, "L", false, 0, "")
	w.pdf.CellFormat(w.width-4*inch, 36, "INVOICE", "", 1, "R", false, 0, "")
	w.font("B", 14, colorBlack)
	w.pdf.SetXY(w.left+4*inch, y+36)
	w.pdf.CellFormat(w.width-4*inch, 28, w.tr(w.fit(doc.Number, w.width-4*inch-2*w.pdf.GetCellMargin())), "", 1, "R", false, 0, "")
	w.skip(0.25 * inch)
}

func (w *pdfWriter) logo(l *Logo) {
	data, format, ok := l.imageData()
	if !ok {
		return
	}
	opts := fpdf.ImageOptions{ImageType: format}
	w.pdf.RegisterImageOptionsReader("logo", opts, bytes.NewReader(data))
	if !w.pdf.Ok() {
		// the upload passed the header check but is not decodable
		w.pdf.ClearError()
		return
	}
	w.ensureSpace(1 * inch)
	y := w.pdf.GetY()
	w.pdf.ImageOptions("logo", w.left, y, 1*inch, 1*inch, false, opts, 0, "")
	w.pdf.SetXY(w.left, y+1*inch)
	w.skip(0.25 * inch)
}

func (w *pdfWriter) partyInfo(doc *document) {
	const pad, lh, size = 12.0, 14.0, 10.0
	colW := w.width / 2
	left := w.wrapLines(doc.Business, colW-2*pad, size)
	right := w.wrapLines(doc.Client, colW-2*pad, size)
	rows := len(left)
	if len(right) > rows {
		rows = len(right)
	}
	h := 2*pad + float64(rows)*lh

	w.ensureSpace(h)
	y := w.pdf.GetY()
	w.pdf.SetFillColor(colorPanel.r, colorPanel.g, colorPanel.b)
	w.pdf.Rect(w.left, y, w.width, h, "F")
	for i, l := range left {
		w.richLine(w.left+pad, y+pad+float64(i)*lh, colW-2*pad, lh, l, "L", size, colorBlack)
	}
	for i, l := range right {
		w.richLine(w.left+colW+pad, y+pad+float64(i)*lh, colW-2*pad, lh, l, "L", size, colorBlack)
	}
	w.pdf.SetXY(w.left, y+h)
	w.skip(0.25 * inch)
}

func (w *pdfWriter) metadata(doc *document) {
	const lh, size = 14.0, 10.0
	w.ensureSpace(float64(len(doc.MetaRight)) * lh)
	y := w.pdf.GetY()
	w.richLine(w.left, y, 4*inch, lh, doc.MetaLeft, "L", size, colorText)
	for i, l := range doc.MetaRight {
		w.richLine(w.left+4*inch, y+float64(i)*lh, w.width-4*inch, lh, l, "R", size, colorText)
	}
	w.pdf.SetXY(w.left, y+float64(len(doc.MetaRight))*lh)
	w.skip(0.25 * inch)
}

func (w *pdfWriter) tableHeader(doc *document) {
	const h = 26.0
	w.font("B", 12, colorWhite)
	w.pdf.SetFillColor(colorAccent.r, colorAccent.g, colorAccent.b)
	w.pdf.SetDrawColor(colorGrid.r, colorGrid.g, colorGrid.b)
	w.pdf.SetLineWidth(1)
	w.pdf.SetX(w.left)
	for i, title := range doc.ItemHeader {
		w.pdf.CellFormat(itemColumns[i], h, title, "1", 0, "C", true, 0, "")
	}
	w.pdf.SetXY(w.left, w.pdf.GetY()+h)
}

func (w *pdfWriter) itemTable(doc *document) {
	const pad, lh, size = 6.0, 12.0, 10.0
	w.ensureSpace(26 + lh + 2*pad)
	w.tableHeader(doc)
	for _, row := range doc.Items {
		w.font("", size, colorText)
		desc := w.wrap(row[0], itemColumns[0]-2*pad)
		h := float64(len(desc))*lh + 2*pad
		if w.ensureSpace(h) {
			w.tableHeader(doc)
		}
		w.font("", size, colorText)
		w.pdf.SetDrawColor(colorGrid.r, colorGrid.g, colorGrid.b)
		y := w.pdf.GetY()
		x := w.left
		for col, wd := range itemColumns {
			w.pdf.Rect(x, y, wd, h, "D")
			if col == 0 {
				for i, s := range desc {
					w.pdf.SetXY(x+pad, y+pad+float64(i)*lh)
					w.pdf.CellFormat(wd-2*pad, lh, w.tr(s), "", 0, "L", false, 0, "")
				}
			} else {
				w.pdf.SetXY(x, y+(h-lh)/2)
				w.pdf.CellFormat(wd, lh, w.tr(row[col]), "", 0, "C", false, 0, "")
			}
			x += wd
		}
		w.pdf.SetXY(w.left, y+h)
	}
	w.skip(0.25 * inch)
}

func (w *pdfWriter) totals(doc *document) {
	const h, totalH = 18.0, 26.0
	w.ensureSpace(float64(len(doc.Totals)-1)*h + totalH)
	labelX := w.left + itemColumns[0] + itemColumns[1]
	for i, row := range doc.Totals {
		y := w.pdf.GetY()
		last := i == len(doc.Totals)-1
		rh := h
		if last {
			rh = totalH
			w.pdf.SetDrawColor(colorAccent.r, colorAccent.g, colorAccent.b)
			w.pdf.SetLineWidth(1)
			w.pdf.Line(labelX, y, labelX+itemColumns[2]+itemColumns[3], y)
			w.font("B", 14, colorAccent)
		} else {
			w.font("", 10, colorText)
		}
		w.pdf.SetXY(labelX, y)
		w.pdf.CellFormat(itemColumns[2], rh, w.tr(row[0]), "", 0, "R", false, 0, "")
		w.pdf.CellFormat(itemColumns[3], rh, w.tr(row[1]), "", 0, "R", false, 0, "")
		w.pdf.SetXY(w.left, y+rh)
	}
}

func (w *pdfWriter) payment(doc *document) {
	const lh, size = 14.0, 10.0
	w.skip(0.25 * inch)
	for _, l := range w.wrapLines(doc.Payment, w.width, size) {
		w.ensureSpace(lh)
		y := w.pdf.GetY()
		w.richLine(w.left, y, w.width, lh, l, "L", size, colorBlack)
		w.pdf.SetXY(w.left, y+lh)
	}
}

func (w *pdfWriter) footer(doc *document) {
	const lh = 16.0
	w.skip(0.5 * inch)
	w.ensureSpace(2*lh + 0.1*inch)
	w.font("B", 12, colorText)
	w.pdf.SetX(w.left)
	w.pdf.CellFormat(w.width, lh, w.tr(doc.Footer), "", 1, "C", false, 0, "")
	w.skip(0.1 * inch)
	w.pdf.CellFormat(w.width, lh, w.tr(doc.DueMessage), "", 1, "C", false, 0, "")
}

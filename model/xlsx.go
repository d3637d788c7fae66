package model

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const xlsxSheet = "Invoice"

// WriteXLSX writes the invoice as a spreadsheet with one row per line item
// followed by the totals. Amounts are written as numbers, rounded to cents.
func WriteXLSX(inv *Invoice, w io.Writer) error {
	if err := inv.checkDates(); err != nil {
		return err
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return err
	}

	rows := [][]any{
		{inv.Name, inv.Number},
		{"Date", inv.Date.Format(DateLayout)},
		{"Due Date", inv.DueDate.Format(DateLayout)},
		{"From", inv.Business.Name},
		{"Bill To", inv.Client.Name},
		{"Currency", inv.Currency},
		{},
		{"Description", "Quantity", "Price", "Amount"},
	}
	headerRow := len(rows)
	for _, it := range inv.Items {
		rows = append(rows, []any{it.Description, it.Quantity, it.Price.Round(2).InexactFloat64(), it.Amount.Round(2).InexactFloat64()})
	}
	firstMoneyRow := headerRow + 1
	rows = append(rows,
		[]any{},
		[]any{nil, nil, "Subtotal", inv.Subtotal.Round(2).InexactFloat64()},
		[]any{nil, nil, fmt.Sprintf("Tax (%s%%)", inv.TaxRate.String()), inv.Tax.Round(2).InexactFloat64()},
		[]any{nil, nil, "Total", inv.Total.Round(2).InexactFloat64()},
	)

	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err = f.SetSheetRow(xlsxSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	last := len(rows)
	if err = f.SetCellStyle(xlsxSheet, fmt.Sprintf("C%d", firstMoneyRow), fmt.Sprintf("D%d", last), money); err != nil {
		return err
	}
	if err = f.SetCellStyle(xlsxSheet, "A1", "B1", bold); err != nil {
		return err
	}
	if err = f.SetCellStyle(xlsxSheet, fmt.Sprintf("A%d", headerRow), fmt.Sprintf("D%d", headerRow), bold); err != nil {
		return err
	}
	if err = f.SetColWidth(xlsxSheet, "A", "A", 50); err != nil {
		return err
	}
	if err = f.SetColWidth(xlsxSheet, "B", "D", 14); err != nil {
		return err
	}

	if _, err = f.WriteTo(w); err != nil {
		return fmt.Errorf("write spreadsheet for %s: %w", inv.Number, err)
	}
	return nil
}

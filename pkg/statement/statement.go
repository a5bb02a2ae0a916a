package statement

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
	"github.com/tealeg/xlsx"
)

const dateLayout = "2006-01-02 15:04:05"

// Format 匯出格式
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// ParseFormat 解析 query string 的 format
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatXLSX, FormatPDF:
		return f, nil
	}
	return "", fmt.Errorf("statement: unsupported format %q", s)
}

// ContentType 對應的 MIME type
func (f Format) ContentType() string {
	if f == FormatPDF {
		return "application/pdf"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Entry 對帳單的一列
type Entry struct {
	ID           string
	Date         time.Time
	Type         string
	Details      string
	Amount       int64
	Fee          int64
	BalanceAfter int64
}

// Statement 一個帳戶的對帳單
type Statement struct {
	AccountName string
	Phone       string
	GeneratedAt time.Time
	Balance     int64
	// Scale 最小單位的小數位數，0 代表金額就是整數單位
	Scale   int32
	Entries []Entry
}

// Money 最小單位轉成顯示用字串
func (s *Statement) Money(minor int64) string {
	return decimal.New(minor, -s.Scale).StringFixed(s.Scale)
}

var header = []string{"ID", "Date", "Type", "Details", "Amount", "Fee", "Balance"}

func (s *Statement) row(e Entry) []string {
	return []string{
		e.ID,
		e.Date.Format(dateLayout),
		e.Type,
		e.Details,
		s.Money(e.Amount),
		s.Money(e.Fee),
		s.Money(e.BalanceAfter),
	}
}

// Write 依格式輸出
func (s *Statement) Write(w io.Writer, f Format) error {
	switch f {
	case FormatXLSX:
		return s.WriteXLSX(w)
	case FormatPDF:
		return s.WritePDF(w)
	}
	return fmt.Errorf("statement: unsupported format %q", f)
}

// WriteXLSX 輸出 Excel 檔
func (s *Statement) WriteXLSX(w io.Writer) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Transactions")
	if err != nil {
		return err
	}

	// Header row
	row := sheet.AddRow()
	for _, title := range header {
		row.AddCell().SetValue(title)
	}

	// Data rows
	for _, e := range s.Entries {
		row = sheet.AddRow()
		for _, v := range s.row(e) {
			row.AddCell().SetValue(v)
		}
	}

	row = sheet.AddRow()
	row.AddCell().SetValue("Closing balance")
	row.AddCell().SetValue(s.Money(s.Balance))
	return file.Write(w)
}

var pdfWidths = []float64{48, 32, 22, 70, 24, 18, 26}

// WritePDF 輸出 PDF (A4 橫向)
func (s *Statement) WritePDF(w io.Writer) error {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(40, 10, "Transactions Report")
	pdf.Ln(10)

	pdf.SetFont("Arial", "", 11)
	pdf.Cell(40, 7, fmt.Sprintf("%s (%s)", s.AccountName, s.Phone))
	pdf.Ln(6)
	pdf.Cell(40, 7, fmt.Sprintf("Generated %s, balance %s", s.GeneratedAt.Format(dateLayout), s.Money(s.Balance)))
	pdf.Ln(10)

	pdf.SetFont("Arial", "B", 10)
	for i, title := range header {
		pdf.CellFormat(pdfWidths[i], 7, title, "1", 0, "", false, 0, "")
	}
	pdf.Ln(7)

	pdf.SetFont("Arial", "", 9)
	for _, e := range s.Entries {
		for i, v := range s.row(e) {
			align := ""
			if i >= 4 {
				align = "R"
			}
			pdf.CellFormat(pdfWidths[i], 7, v, "1", 0, align, false, 0, "")
		}
		pdf.Ln(7)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}

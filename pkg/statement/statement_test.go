package statement

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx"
)

func sample(scale int32) *Statement {
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return &Statement{
		AccountName: "Sita",
		Phone:       "9800000001",
		GeneratedAt: at,
		Balance:     89,
		Scale:       scale,
		Entries: []Entry{
			{ID: "01JA", Date: at, Type: "transfer-out", Details: "To 9800000002 (11 fee)", Amount: 100, Fee: 11, BalanceAfter: 89},
			{ID: "01J9", Date: at.Add(-time.Hour), Type: "deposit", Details: "Deposited 100", Amount: 100, BalanceAfter: 200},
		},
	}
}

func TestMoney(t *testing.T) {
	assert.Equal(t, "89", sample(0).Money(89))
	assert.Equal(t, "0.89", sample(2).Money(89))
	assert.Equal(t, "1000.00", sample(2).Money(100000))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", f.ContentType())

	_, err = ParseFormat("csv")
	assert.Error(t, err)
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sample(0).Write(&buf, FormatXLSX))

	file, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, file.Sheets, 1)

	rows := file.Sheets[0].Rows
	require.Len(t, rows, 4)
	assert.Equal(t, "Details", rows[0].Cells[3].Value)
	assert.Equal(t, "To 9800000002 (11 fee)", rows[1].Cells[3].Value)
	assert.Equal(t, "11", rows[1].Cells[5].Value)
	assert.Equal(t, "89", rows[3].Cells[1].Value)
}

func TestWritePDF(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sample(2).Write(&buf, FormatPDF))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}

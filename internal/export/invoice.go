// Package export lays out a bill as an invoice and rasterizes it to PNG.
package export

import (
	"fmt"
	"strings"

	"rentbill/internal/core"
)

// Letterhead is the fixed invoice text around the bill's numbers.
type Letterhead struct {
	LandlordName    string
	LandlordAddress string
	PaymentNote     string
	CurrencyLabel   string
}

// Row is one numbered invoice line.
type Row struct {
	Label    string
	Currency string
	Amount   string
	Total    bool
}

// Invoice is the text content of a bill's preview, shared by the HTML
// preview and the PNG renderer so both show the same thing.
type Invoice struct {
	Heading         string
	Period          string
	Rows            []Row
	Note            string
	Date            string
	LandlordName    string
	LandlordAddress string
}

const periodRule = "-------------------"

// Layout builds the invoice for a bill.
func Layout(b core.Bill, lh Letterhead) Invoice {
	cur := lh.CurrencyLabel
	row := func(label string, c core.Charge) Row {
		return Row{Label: label, Currency: cur, Amount: core.FormatCharge(c)}
	}
	return Invoice{
		Heading: "INVOICE FOR RENT FOR THE PERIOD FROM",
		Period:  fmt.Sprintf("%s %s %d %s", periodRule, strings.ToUpper(b.Month), b.Year, periodRule),
		Rows: []Row{
			row(fmt.Sprintf("1. HOUSE RENT FOR %s FLOOR", b.Floor), b.Rent),
			row("2. ELECTRICITY BILL", b.Electricity),
			row("3. GAS BILL", b.Gas),
			row("4. WATER BILL", b.Water),
			row("5. GARBAGE (SOCIETY)", b.Garbage),
			row("6. SERVICE CHARGE", b.Service),
			{Label: "7. TOTAL", Currency: cur, Amount: core.FormatAmount(b.Total), Total: true},
		},
		Note:            lh.PaymentNote,
		Date:            "DATE: " + b.BillDate.String(),
		LandlordName:    lh.LandlordName,
		LandlordAddress: lh.LandlordAddress,
	}
}

// wrap breaks s into lines of at most width characters on word boundaries.
// Words longer than width get a line of their own.
func wrap(s string, width int) []string {
	var lines []string
	var cur strings.Builder
	for _, w := range strings.Fields(s) {
		if cur.Len() > 0 && cur.Len()+1+len(w) > width {
			lines = append(lines, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(w)
	}
	if cur.Len() > 0 {
		lines = append(lines, cur.String())
	}
	return lines
}

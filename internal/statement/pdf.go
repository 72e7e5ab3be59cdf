package statement

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/mockbank/mockbank/internal/banking"
	"github.com/mockbank/mockbank/internal/ledger"
)

var columns = []struct {
	title string
	width float64
	align string
}{
	{"Date", 38, "L"},
	{"Type", 24, "L"},
	{"Description", 58, "L"},
	{"Reference", 22, "C"},
	{"Amount", 24, "R"},
	{"Balance", 24, "R"},
}

// RenderPDF writes the statement for the period to w as a PDF document.
// At most the configured number of renders run at once; callers that cannot
// get a slot in time get ErrBusy.
func (s *Service) RenderPDF(ctx context.Context, w io.Writer, accountNumber string, year, month int) error {
	acquireCtx, cancel := context.WithTimeout(ctx, s.wait)
	defer cancel()
	if err := s.renders.Acquire(acquireCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrBusy
	}
	defer s.renders.Release(1)

	st, err := s.Statement(ctx, accountNumber, year, month)
	if err != nil {
		return err
	}
	return writePDF(w, st, s.loc)
}

func writePDF(w io.Writer, st Statement, loc *time.Location) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("Account statement "+st.AccountNumber, true)
	pdf.SetCreator("MockBank", true)
	pdf.SetCreationDate(st.GeneratedAt)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, "MockBank - Account statement", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, tr("Holder: "+st.Holder), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, "Account number: "+st.AccountNumber, "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, "Period: "+periodLabel(st.Year, st.Month), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, "Generated: "+st.GeneratedAt.In(loc).Format("2006-01-02 15:04 MST"), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(230, 236, 245)
	for _, col := range columns {
		pdf.CellFormat(col.width, 7, col.title, "1", 0, col.align, true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	if len(st.Transactions) == 0 {
		pdf.CellFormat(190, 7, "No transactions in this period", "1", 1, "C", false, 0, "")
	}
	for _, tx := range st.Transactions {
		amount := banking.FormatAmount(tx.Amount)
		if tx.Type == ledger.TypeWithdrawal {
			amount = "-" + amount
		}
		cells := []string{
			tx.CreatedAt.In(loc).Format("2006-01-02 15:04"),
			string(tx.Type),
			tr(truncate(tx.Memo, 34)),
			tx.Reference,
			amount,
			banking.FormatAmount(tx.BalanceAfter),
		}
		for i, col := range columns {
			pdf.CellFormat(col.width, 6, cells[i], "1", 0, col.align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(0, 6, "Credits: $"+banking.FormatAmount(st.Totals.Credits), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, "Debits: $"+banking.FormatAmount(st.Totals.Debits), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, "Current balance: $"+banking.FormatAmount(st.Balance), "", 1, "L", false, 0, "")

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render statement pdf: %w", err)
	}
	return nil
}

func periodLabel(year, month int) string {
	switch {
	case year == 0 && month == 0:
		return "All transactions"
	case month == 0:
		return strconv.Itoa(year)
	case year == 0:
		return time.Month(month).String() + " (all years)"
	default:
		return fmt.Sprintf("%s %d", time.Month(month), year)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "."
}

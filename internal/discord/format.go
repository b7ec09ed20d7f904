package discord

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/NgigiN/walletsync/internal/diagnostics"
	"github.com/NgigiN/walletsync/internal/mpesa"
	"github.com/NgigiN/walletsync/internal/storage"
)

// formatAmount renders d in the currency's own notation, falling back to a
// plain number for codes go-money does not know (crypto, metals).
func formatAmount(d decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return d.StringFixed(2) + " " + currency
	}
	return money.New(d.Shift(int32(cur.Fraction)).IntPart(), currency).Display()
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func formatTotals(totals map[string]decimal.Decimal) string {
	if len(totals) == 0 {
		return "No transactions found."
	}
	names := make([]string, 0, len(totals))
	for name := range totals {
		names = append(names, name)
	}
	slices.Sort(names)

	var sb strings.Builder
	sb.WriteString("📊 **Transaction Summary**\n\n")
	total := decimal.Zero
	for _, name := range names {
		fmt.Fprintf(&sb, "**%s**: %s\n", title(name), formatAmount(totals[name], mpesa.Currency))
		total = total.Add(totals[name])
	}
	fmt.Fprintf(&sb, "\n**Total**: %s", formatAmount(total, mpesa.Currency))
	return sb.String()
}

// formatCategory lists the latest ten transactions of txs, which are
// expected most recent first.
func formatCategory(category string, txs []storage.Transaction) string {
	if len(txs) == 0 {
		return fmt.Sprintf("No transactions found for category: %s", category)
	}
	const limit = 10

	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 **%s Transactions**\n\n", title(category))
	total := decimal.Zero
	for i, tx := range txs {
		total = total.Add(tx.Amount)
		if i >= limit {
			continue
		}
		fmt.Fprintf(&sb, "• **%s** %s\n  %s\n\n",
			formatAmount(tx.Amount, tx.CurrencyCode), tx.Note,
			tx.Date.Format("Jan 2, 2006 3:04 PM"))
	}
	if len(txs) > limit {
		fmt.Fprintf(&sb, "... and %d more transactions\n\n", len(txs)-limit)
	}
	fmt.Fprintf(&sb, "**Total %s**: %s (%d transactions)", title(category), formatAmount(total, mpesa.Currency), len(txs))
	return sb.String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format("Jan 2, 2006 3:04 PM")
}

func formatStatus(st diagnostics.Status) string {
	var sb strings.Builder
	sb.WriteString("🗄️ **Backup Status**\n\n")
	fmt.Fprintf(&sb, "**Local backup**: %s\n", formatTime(st.LastLocalSuccess))
	if st.LastLocalError != "" {
		fmt.Fprintf(&sb, "  last error: %s\n", st.LastLocalError)
	}
	fmt.Fprintf(&sb, "**Cloud backup**: %s\n", formatTime(st.LastRemoteSuccess))
	if st.LastRemoteError != "" {
		fmt.Fprintf(&sb, "  last error (%s): %s\n", st.LastReason, st.LastRemoteError)
	}
	mode := st.StorageMode
	if mode == "" {
		mode = "local"
	}
	fmt.Fprintf(&sb, "**Storage**: %s", mode)
	if st.RequestedCloud && mode != "cloud" {
		sb.WriteString(" (cloud requested)")
	}
	return sb.String()
}

package discord

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/NgigiN/walletsync/internal/migrate"
	"github.com/NgigiN/walletsync/internal/mpesa"
	"github.com/NgigiN/walletsync/internal/storage"
)

// mpesaWallet is the wallet every ingested M-PESA expense is drawn from.
const mpesaWallet = "M-PESA"

var validCategories = []string{"food", "travel", "savings", "church", "investments"}

func isValidCategory(category string) bool {
	return slices.Contains(validCategories, strings.ToLower(category))
}

// entry is one confirmation message plus the metadata lines following it.
type entry struct {
	Message  string
	Metadata []string
}

func isMetadata(line string) bool {
	for _, p := range []string{"c:", "Category:", "r:", "Reason:"} {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

func splitIntoEntries(lines []string) []entry {
	var entries []entry
	for _, line := range lines {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case mpesa.Looks(line):
			entries = append(entries, entry{Message: line})
		case len(entries) > 0 && isMetadata(line):
			last := &entries[len(entries)-1]
			last.Metadata = append(last.Metadata, line)
		}
	}
	return entries
}

func parseMetadata(lines []string) (category, reason string) {
	category = "uncategorized"
	for _, line := range lines {
		line = strings.TrimSpace(line)
		for _, p := range []string{"Category:", "c:"} {
			if v, ok := strings.CutPrefix(line, p); ok {
				category = strings.ToLower(strings.TrimSpace(v))
			}
		}
		for _, p := range []string{"Reason:", "r:"} {
			if v, ok := strings.CutPrefix(line, p); ok {
				reason = strings.TrimSpace(v)
			}
		}
	}
	return category, reason
}

// ingest records every confirmation in content and triggers a backup when
// anything was saved.
func (b *Bot) ingest(ctx context.Context, content string) string {
	entries := splitIntoEntries(strings.Split(content, "\n"))
	if len(entries) == 0 {
		return fmt.Sprintf("Invalid M-PESA message: %v", mpesa.ErrNotOutgoing)
	}

	var (
		saved    []*mpesa.ParsedTransaction
		category string
		problems []string
	)
	for i, e := range entries {
		parsed, cat, err := b.record(ctx, e)
		if err != nil {
			problems = append(problems, fmt.Sprintf("Transaction %d: %v", i+1, err))
			continue
		}
		saved = append(saved, parsed)
		category = cat
	}
	if len(saved) > 0 {
		b.app.BackupIfNeeded(ctx, false)
	}

	if len(entries) == 1 {
		if len(problems) > 0 {
			return problems[0]
		}
		p := saved[0]
		return fmt.Sprintf("Tracked %s: %s to %s in %s", p.TransactionID, formatAmount(p.Total(), mpesa.Currency), p.Recipient, category)
	}

	var sb strings.Builder
	sb.WriteString("📊 **Batch Processing Complete**\n")
	fmt.Fprintf(&sb, "✅ **Successfully processed**: %d transactions\n", len(saved))
	if len(problems) > 0 {
		fmt.Fprintf(&sb, "❌ **Failed**: %d transactions\n**Errors:**\n", len(problems))
		for _, p := range problems {
			fmt.Fprintf(&sb, "• %s\n", p)
		}
	}
	return sb.String()
}

func (b *Bot) record(ctx context.Context, e entry) (*mpesa.ParsedTransaction, string, error) {
	parsed, err := mpesa.ParseMPesaMessage(e.Message)
	if err != nil {
		return nil, "", err
	}
	category, reason := parseMetadata(e.Metadata)
	if !isValidCategory(category) {
		return nil, "", fmt.Errorf("invalid category %q, use: %s", category, strings.Join(validCategories, ", "))
	}

	live := b.app.Live
	cat, err := live.CategoryByName(ctx, category, storage.CategoryExpense)
	if err != nil {
		return nil, "", err
	}
	wallet, err := live.WalletByName(ctx, mpesaWallet, mpesa.Currency)
	if err != nil {
		return nil, "", err
	}

	note := parsed.TransactionID + " | " + parsed.Recipient
	if reason != "" {
		note += " | " + reason
	}
	tx := &storage.Transaction{
		Amount:       parsed.Total(),
		CurrencyCode: mpesa.Currency,
		Date:         parsed.DateTime,
		Note:         note,
	}
	if err := live.RecordExpense(ctx, tx, wallet, cat, &parsed.Balance); err != nil {
		return nil, "", err
	}
	return parsed, category, nil
}

func (b *Bot) summaryCommand(ctx context.Context, args []string) string {
	switch len(args) {
	case 0:
		totals, err := b.app.Live.CategoryTotals(ctx)
		if err != nil {
			return fmt.Sprintf("Failed to get summary: %v", err)
		}
		return formatTotals(totals)
	case 1:
		category := strings.ToLower(args[0])
		if !isValidCategory(category) {
			return fmt.Sprintf("Invalid category: %s. Use: %s", category, strings.Join(validCategories, ", "))
		}
		txs, err := b.app.Live.TransactionsByCategory(ctx, category)
		if err != nil {
			return fmt.Sprintf("Failed to get transactions: %v", err)
		}
		return formatCategory(category, txs)
	}
	return "Usage: !summary [category]\nExamples:\n!summary - show all categories\n!summary food - show food transactions"
}

func (b *Bot) migrateCommand(ctx context.Context, mode string) string {
	res, err := b.app.SwitchMode(ctx, migrate.Mode(strings.ToLower(mode)))
	if err != nil {
		return fmt.Sprintf("Storage switch failed: %v", err)
	}
	if res.Skipped != "" {
		return fmt.Sprintf("Now using %s storage (nothing copied: %s).", mode, res.Skipped)
	}
	return fmt.Sprintf("Now using %s storage, copied %d entities.", mode, res.Total())
}

// Package mpesa parses outgoing M-PESA confirmation messages into ledger
// expenses.
package mpesa

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Currency is the asset code of every M-PESA amount.
const Currency = "KES"

// Ksh<number>[,number]* with optional fractional part.
const money = `Ksh[\d,]+(?:\.\d+)?`

// Accepts the variants seen in the wild: optional periods and spaces, "for
// account ..." inside the recipient, M-PESA or business balance, a missing
// space before "New" and trailing promotional text.
var outgoing = regexp.MustCompile(`(?i)(\w+)\s+Confirmed\.?\s+(` + money + `)\s+(sent|paid)\s+to\s+(.*?)\s*\.?\s+on\s+(\d{1,2}/\d{1,2}/\d{2})\s+at\s+(\d{1,2}:\d{2})\s?(AM|PM)\.?\s*New\s+(?:M-PESA|business)\s+balance\s+is\s+(` + money + `)\.\s*Transaction\s+cost,?\s*(` + money + `)(?:\.|\b)`)

var ErrNotOutgoing = errors.New("not a valid outgoing M-PESA message")

type ParsedTransaction struct {
	TransactionID string
	Amount        decimal.Decimal
	Recipient     string
	DateTime      time.Time
	Balance       decimal.Decimal
	Cost          decimal.Decimal
}

// Total is what left the wallet: the amount plus the transaction cost.
func (p *ParsedTransaction) Total() decimal.Decimal {
	return p.Amount.Add(p.Cost)
}

// Looks reports whether line reads like the start of an M-PESA confirmation,
// without fully parsing it.
func Looks(line string) bool {
	if !strings.Contains(line, "Confirmed.") {
		return false
	}
	return strings.Contains(line, "sent to") || strings.Contains(line, "paid to") || strings.Contains(line, "received")
}

func ParseMPesaMessage(msg string) (*ParsedTransaction, error) {
	m := outgoing.FindStringSubmatch(msg)
	if m == nil {
		return nil, ErrNotOutgoing
	}

	amount, err := parseKsh(m[2])
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount: %w", err)
	}
	balance, err := parseKsh(m[8])
	if err != nil {
		return nil, fmt.Errorf("failed to parse balance: %w", err)
	}
	cost, err := parseKsh(m[9])
	if err != nil {
		return nil, fmt.Errorf("failed to parse cost: %w", err)
	}

	when := fmt.Sprintf("%s %s %s", m[5], m[6], strings.ToUpper(m[7]))
	dateTime, err := time.ParseInLocation("2/1/06 3:04 PM", when, nairobi)
	if err != nil {
		return nil, fmt.Errorf("failed to parse date/time: %w", err)
	}

	recipient := strings.TrimSuffix(strings.TrimSpace(m[4]), ".")
	return &ParsedTransaction{
		TransactionID: m[1],
		Amount:        amount,
		Recipient:     strings.Join(strings.Fields(recipient), " "),
		DateTime:      dateTime,
		Balance:       balance,
		Cost:          cost,
	}, nil
}

// M-PESA timestamps are East Africa Time, which has no DST.
var nairobi = time.FixedZone("EAT", 3*60*60)

func parseKsh(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimPrefix(s, "Ksh"), ",", "")
	return decimal.NewFromString(s)
}

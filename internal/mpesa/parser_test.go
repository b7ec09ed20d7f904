package mpesa

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOutgoingVariants(t *testing.T) {
	cases := []struct {
		msg       string
		id        string
		amount    string
		recipient string
		balance   string
	}{
		{`TIH5CRR635 Confirmed. Ksh65.00 paid to Anthony Wambua Muinde2. on 17/9/25 at 6:56 PM.New M-PESA balance is Ksh719.18. Transaction cost, Ksh0.00. Amount you can transact within the day is 498,760.00. Save frequent Tills for quick payment on M-PESA app https://bit.ly/mpesalnk`, "TIH5CRR635", "65", "Anthony Wambua Muinde2", "719.18"},
		{`TIH6CSP6KA Confirmed. Ksh40.00 sent to Co-operative Bank Money Transfer for account 1082111 on 17/9/25 at 6:59 PM New M-PESA balance is Ksh679.18. Transaction cost, Ksh0.00.`, "TIH6CSP6KA", "40", "Co-operative Bank Money Transfer for account 1082111", "679.18"},
		{`TII5I5YNFP Confirmed. Ksh35.00 paid to FELIX MWENDWA KIKOLE. on 18/9/25 at 7:18 PM.New M-PESA balance is Ksh644.18. Transaction cost, Ksh0.00. Amount you can transact within the day is 499,965.00. Save frequent Tills for quick payment on M-PESA app https://bit.ly/mpesalnk`, "TII5I5YNFP", "35", "FELIX MWENDWA KIKOLE", "644.18"},
		{`TII8I79A5O Confirmed. Ksh40.00 sent to Divinah  Nyabuto on 18/9/25 at 7:22 PM. New M-PESA balance is Ksh604.18. Transaction cost, Ksh0.00. Amount you can transact within the day is 499,925.00. Sign up for Lipa Na M-PESA Till online https://m-pesaforbusiness.co.ke`, "TII8I79A5O", "40", "Divinah Nyabuto", "604.18"},
		{`TIJ9N9U6HT Confirmed. Ksh1,025.00 sent to Caroline  Mwania on 19/9/25 at 7:05PM. New M-PESA balance is Ksh579.18. Transaction cost, Ksh13.00. Amount you can transact within the day is 499,975.00.`, "TIJ9N9U6HT", "1025", "Caroline Mwania", "579.18"},
	}

	for _, c := range cases {
		t.Run(c.id, func(t *testing.T) {
			p, err := ParseMPesaMessage(c.msg)
			require.NoError(t, err)
			assert.Equal(t, c.id, p.TransactionID)
			assert.True(t, decimal.RequireFromString(c.amount).Equal(p.Amount), "amount %s", p.Amount)
			assert.True(t, decimal.RequireFromString(c.balance).Equal(p.Balance), "balance %s", p.Balance)
			assert.Equal(t, c.recipient, p.Recipient)
			assert.True(t, Looks(c.msg))
		})
	}
}

func TestParseDateAndCost(t *testing.T) {
	p, err := ParseMPesaMessage(`TIJ9N9U6HT Confirmed. Ksh1,025.00 sent to Caroline Mwania on 19/9/25 at 7:05 PM. New M-PESA balance is Ksh579.18. Transaction cost, Ksh13.00.`)
	require.NoError(t, err)
	assert.True(t, p.DateTime.Equal(time.Date(2025, 9, 19, 16, 5, 0, 0, time.UTC)))
	assert.Equal(t, "1038", p.Total().String())
}

func TestParseRejectsOtherMessages(t *testing.T) {
	for _, msg := range []string{
		"",
		"hello there",
		`TIK1 Confirmed. You have received Ksh500.00 from JOHN DOE on 1/10/25 at 9:00 AM. New M-PESA balance is Ksh1,079.18.`,
	} {
		_, err := ParseMPesaMessage(msg)
		assert.ErrorIs(t, err, ErrNotOutgoing)
	}
}

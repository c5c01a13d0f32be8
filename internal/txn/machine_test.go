package txn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/posagent/posagentd/internal/classify"
)

func testDevice() DeviceInfo {
	return DeviceInfo{
		DeviceID:      "mmd-rv1-a1b2c3-1",
		DeviceName:    "lane-1",
		PosType:       "generic",
		ParserVersion: "1",
		TerminalID:    "1",
	}
}

// feedLines feeds a slice of raw receipt lines through the machine, all
// stamped with the same arrival time. Results are observed through the
// machine's callbacks; it returns nothing.
func feedLines(t *testing.T, m *Machine, raws []string) {
	t.Helper()
	now := time.Date(2025, 7, 23, 10, 15, 15, 0, time.UTC)
	for _, raw := range raws {
		m.Feed(raw, now)
	}
}

func TestScenarioA_StraightSaleCash(t *testing.T) {
	var gotPayloads [][]LineRecord
	var gotSummary Summary
	ended := 0

	m := NewMachine(testDevice(), true, Callbacks{
		OnEnd: func(payloads [][]LineRecord, summary Summary) {
			ended++
			gotPayloads = payloads
			gotSummary = summary
		},
	})

	feedLines(t, m, []string{
		"L  Monster Blue Hawaiia   1        3.49",
		"   PROPEL GRAPE 20oz      1        2.29",
		"                       TOTAL       5.78",
		"                        CASH       6.00",
		"ST#1                   DR#1 TRAN#1028401 CSH: CORPORATE         07/23/25 10:15:15",
	})

	require.Equal(t, 1, ended)
	require.Len(t, gotPayloads, 1, "batched mode produces a single lines payload")

	lines := gotPayloads[0]
	require.Len(t, lines, 5, "5 line payloads: 2 items, total, cash, cashier")

	assert.Equal(t, classify.TypeItem, lines[0].Type)
	assert.Equal(t, classify.TypeItem, lines[1].Type)
	assert.Equal(t, classify.TypeTotal, lines[2].Type)
	assert.Equal(t, classify.TypeCash, lines[3].Type)
	assert.Equal(t, classify.TypeCashier, lines[4].Type)

	for i, l := range lines {
		assert.Equal(t, i, l.Position)
		require.NotNil(t, l.TransactionNumber)
		assert.Equal(t, "1028401", *l.TransactionNumber)
		assert.Equal(t, "1", l.Pos.DrawerID)
		assert.Equal(t, "1", l.Pos.StoreID)
	}

	require.NotNil(t, gotSummary.TotalAmount)
	assert.Equal(t, "5.78", gotSummary.TotalAmount.String())
	assert.Equal(t, 2, gotSummary.ItemCount)
	require.NotNil(t, gotSummary.Tenders.Cash)
	assert.Equal(t, "6.00", gotSummary.Tenders.Cash.String())
	require.NotNil(t, gotSummary.TransactionNumber)
	assert.Equal(t, "1028401", *gotSummary.TransactionNumber)
	assert.Nil(t, gotSummary.Tenders.Credit)
	assert.Nil(t, gotSummary.Tenders.Debit)
	assert.Nil(t, gotSummary.Tenders.Preauth)
	assert.Equal(t, 5, gotSummary.LineCount)
}

func TestScenarioB_RefundNegativeAmount(t *testing.T) {
	var captured LineRecord
	m := NewMachine(testDevice(), true, Callbacks{
		OnLine: func(_ *Transaction, rec LineRecord) {
			if rec.Type == classify.TypeItem {
				captured = rec
			}
		},
	})

	feedLines(t, m, []string{"REFUND -1 -1.00"})

	require.Equal(t, classify.TypeItem, captured.Type)
	require.NotNil(t, captured.Qty)
	assert.Equal(t, float64(-1), *captured.Qty)
	require.NotNil(t, captured.Amount)
	assert.Equal(t, "-1.00", captured.Amount.String())
	assert.True(t, captured.ParsedSuccessfully)
}

func TestScenarioC_MashedHeaderAndCashierSplitsAndCloses(t *testing.T) {
	var payloads [][]LineRecord
	ended := 0
	m := NewMachine(testDevice(), true, Callbacks{
		OnEnd: func(p [][]LineRecord, _ Summary) {
			ended++
			payloads = p
		},
	})

	feedLines(t, m, []string{
		"ITEM 1 1.00",
		"ST#2 DR#3 TRAN#99 CSH: JANE DOE 07/23/25 10:15:15",
	})

	require.Equal(t, 1, ended)
	lines := payloads[0]
	require.Len(t, lines, 2)
	assert.Equal(t, classify.TypeItem, lines[0].Type)
	assert.Equal(t, classify.TypeCashier, lines[1].Type)
	require.NotNil(t, lines[0].TransactionNumber)
	assert.Equal(t, "99", *lines[0].TransactionNumber)
	require.NotNil(t, lines[1].TransactionNumber)
	assert.Equal(t, "99", *lines[1].TransactionNumber)
	assert.Equal(t, StateIdle, m.State())
}

func TestPositionsAreDenseAndZeroBased(t *testing.T) {
	var positions []int
	m := NewMachine(testDevice(), true, Callbacks{
		OnLine: func(_ *Transaction, rec LineRecord) {
			positions = append(positions, rec.Position)
		},
	})

	feedLines(t, m, []string{
		"ITEM 1 1.00",
		"ITEM 2 2.00",
		"ITEM 3 3.00",
		"CSH: SOMEONE",
	})

	require.Equal(t, []int{0, 1, 2, 3}, positions)
}

func TestHeaderBackfillsAlreadyBufferedLines(t *testing.T) {
	var payloads [][]LineRecord
	m := NewMachine(testDevice(), true, Callbacks{
		OnEnd: func(p [][]LineRecord, _ Summary) {
			payloads = p
		},
	})

	feedLines(t, m, []string{
		"ITEM 1 1.00",
		"ST#5 DR#6 TRAN#777",
		"CSH: SOMEONE",
	})

	for _, l := range payloads[0] {
		require.NotNil(t, l.TransactionNumber)
		assert.Equal(t, "777", *l.TransactionNumber)
		assert.Equal(t, "5", l.Pos.StoreID)
		assert.Equal(t, "6", l.Pos.DrawerID)
	}
}

func TestIdleIgnoresCashierIgnoreAndEmpty(t *testing.T) {
	started := 0
	m := NewMachine(testDevice(), true, Callbacks{
		OnStart: func(_ *Transaction) { started++ },
	})

	feedLines(t, m, []string{"CSH: NOBODY", "ALARM DOOR OPEN", ""})

	assert.Equal(t, 0, started)
	assert.Equal(t, StateIdle, m.State())
}

func TestUnknownLineStartsTransactionAndIsForwarded(t *testing.T) {
	var captured LineRecord
	m := NewMachine(testDevice(), true, Callbacks{
		OnLine: func(_ *Transaction, rec LineRecord) {
			captured = rec
		},
	})

	feedLines(t, m, []string{"garbled nonsense that matches nothing"})

	assert.Equal(t, classify.TypeUnknown, captured.Type)
	assert.False(t, captured.ParsedSuccessfully)
	assert.Equal(t, StateInTxn, m.State())
}

func TestPerLineModeEmitsOnePayloadPerLine(t *testing.T) {
	var payloads [][]LineRecord
	m := NewMachine(testDevice(), false, Callbacks{
		OnEnd: func(p [][]LineRecord, _ Summary) {
			payloads = p
		},
	})

	feedLines(t, m, []string{"ITEM 1 1.00", "ITEM 2 2.00", "CSH: X"})

	require.Len(t, payloads, 3)
	for _, p := range payloads {
		assert.Len(t, p, 1)
	}
}

func TestAttachNvrEventBackfillsBufferedLines(t *testing.T) {
	var txnHandle *Transaction
	var payloads [][]LineRecord
	m := NewMachine(testDevice(), true, Callbacks{
		OnStart: func(t *Transaction) { txnHandle = t },
		OnEnd: func(p [][]LineRecord, _ Summary) {
			payloads = p
		},
	})

	feedLines(t, m, []string{"ITEM 1 1.00"})
	require.NotNil(t, txnHandle)

	m.AttachNvrEvent(txnHandle.ID, "evt-1", "https://nvr.local/api/events/evt-1")

	feedLines(t, m, []string{"CSH: X"})

	require.Len(t, payloads, 1)
	lines := payloads[0]
	require.Len(t, lines, 2)
	for _, l := range lines {
		require.NotNil(t, l.NvrEventURL)
		assert.Equal(t, "https://nvr.local/api/events/evt-1", *l.NvrEventURL)
	}
}

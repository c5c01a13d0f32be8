// Package txn drives the IDLE/IN_TXN lifecycle that turns a stream of
// classified printer lines into line records and transaction summaries.
package txn

import (
	"time"

	"github.com/posagent/posagentd/internal/classify"
	"github.com/posagent/posagentd/internal/money"
)

// PosMetadata is the block of point-of-sale identifying information carried
// on every emitted line record and transaction summary.
type PosMetadata struct {
	PosType       string `json:"pos_type"`
	ParserVersion string `json:"parser_version"`
	TerminalID    string `json:"terminal_id"`
	DrawerID      string `json:"drawer_id,omitempty"`
	StoreID       string `json:"store_id,omitempty"`
}

// LineRecord is a single emitted line payload: a classified line plus the
// transaction context it was observed in.
type LineRecord struct {
	DeviceID           string          `json:"device_id"`
	DeviceName         string          `json:"device_name"`
	DeviceTimestamp    time.Time       `json:"device_timestamp"`
	Type               classify.LineType `json:"line_type"`
	Description        string          `json:"description,omitempty"`
	Qty                *float64        `json:"qty,omitempty"`
	Amount             *money.Amount   `json:"amount,omitempty"`
	Raw                string          `json:"raw"`
	ParsedSuccessfully bool            `json:"parsed_successfully"`
	Position           int             `json:"position"`
	TransactionNumber  *string         `json:"transaction_number"`
	Pos                PosMetadata     `json:"pos"`
	NvrEventURL        *string         `json:"nvr_event_url,omitempty"`
}

// TenderTotals holds the summed amount observed for each tender type. A nil
// field means that tender type did not appear in the transaction.
type TenderTotals struct {
	Cash    *money.Amount `json:"cash_amount"`
	Credit  *money.Amount `json:"credit_amount"`
	Debit   *money.Amount `json:"debit_amount"`
	Preauth *money.Amount `json:"preauth_amount"`
}

// Summary is the per-transaction roll-up emitted at finalization.
type Summary struct {
	DeviceID          string      `json:"device_id"`
	DeviceName        string      `json:"device_name"`
	TerminalID        string      `json:"terminal_id"`
	PosType           string      `json:"pos_type"`
	TransactionID     string      `json:"transaction_id"`
	TransactionNumber *string     `json:"transaction_number"`
	TotalAmount       *money.Amount `json:"total_amount"`
	ItemCount         int         `json:"item_count"`
	LineCount         int         `json:"line_count"`
	Tenders           TenderTotals `json:"tenders"`
	StartedAt         time.Time   `json:"started_at"`
	CompletedAt       time.Time   `json:"completed_at"`
	NvrEventID        *string     `json:"nvr_event_id"`
	Pos               PosMetadata `json:"pos"`
}

// line is the internal per-transaction accumulator entry: a classified line
// plus the bookkeeping needed to back-fill metadata and render a LineRecord
// at emission time.
type line struct {
	classified classify.ClassifiedLine
	arrivedAt  time.Time
	position   int
	nvrURL     *string
}

// Transaction is the mutable accumulator for one IDLE-to-IDLE cycle. It is
// owned exclusively by the state machine; once the machine has finalized it
// it must not be mutated further.
type Transaction struct {
	ID        string
	StartedAt time.Time

	StoreID           string
	DrawerID          string
	TransactionNumber string
	CashierName       string

	lines    []line
	nextPos  int
	NvrEvent *NvrEventHandle
}

// NvrEventHandle is the weak reference the video coordinator hands back to a
// transaction: an id and URL, nothing that could create a reference cycle.
type NvrEventHandle struct {
	EventID string
	URL     string
}

// HasHeader reports whether an end_header line has been observed yet.
func (t *Transaction) HasHeader() bool {
	return t.TransactionNumber != ""
}

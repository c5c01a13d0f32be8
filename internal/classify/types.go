// Package classify turns a single raw line from the POS printer port into a
// tagged ClassifiedLine. It has no shared state and is safe to call
// concurrently.
package classify

import "github.com/posagent/posagentd/internal/money"

// LineType is the closed set of line kinds the classifier can produce.
type LineType string

const (
	TypeItem            LineType = "item"
	TypeTotal           LineType = "total"
	TypeCash            LineType = "cash"
	TypeDebit           LineType = "debit"
	TypeCredit          LineType = "credit"
	TypePreauth         LineType = "preauth"
	TypeEndHeader       LineType = "end_header"
	TypeCashier         LineType = "cashier"
	TypeAgeVerification LineType = "age_verification"
	TypeIgnore          LineType = "ignore"
	TypeEmpty           LineType = "empty"
	TypeUnknown         LineType = "unknown"
)

// tenderTypes is the set of line types that carry a tender (payment method)
// amount, used by the transaction summary to compute per-tender totals.
var tenderTypes = map[LineType]bool{
	TypeCash:    true,
	TypeDebit:   true,
	TypeCredit:  true,
	TypePreauth: true,
}

// IsTender reports whether t is one of the tender line types.
func IsTender(t LineType) bool {
	return tenderTypes[t]
}

// ClassifiedLine is the output of Classify: a tagged variant with one case
// per LineType. Only the fields relevant to Type are populated.
type ClassifiedLine struct {
	Type LineType
	Raw  string // cleaned text, after clean() and any mashed-packet split

	// item
	Description string
	Qty         float64
	HasQty      bool

	// item / total / cash / debit / credit / preauth
	Amount    money.Amount
	HasAmount bool

	// end_header
	StoreID string
	DrawerID string
	TxnNumber string

	// cashier
	CashierName string

	// age_verification
	AgeVerificationStatus string // BYPASS, APPROVED, DENIED
	AgeVerificationTxn    string
}

package txn

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/posagent/posagentd/internal/classify"
	"github.com/posagent/posagentd/internal/logger"
	"github.com/posagent/posagentd/internal/money"
)

// State is one of the two states the machine can be in.
type State string

const (
	StateIdle  State = "IDLE"
	StateInTxn State = "IN_TXN"
)

// DeviceInfo is the static identity the machine stamps onto every line
// record and transaction summary it produces.
type DeviceInfo struct {
	DeviceID      string
	DeviceName    string
	PosType       string
	ParserVersion string
	TerminalID    string
}

// Callbacks are the three hooks the machine drives a consumer through. All
// three are invoked synchronously from the goroutine that calls Feed; a
// slow callback blocks ingest, so callers that need to do I/O (HTTP calls
// to an NVR, pushes onto a queue) should keep the work they do inside these
// callbacks non-blocking themselves.
type Callbacks struct {
	// OnStart fires once a transaction is opened, before the first line is
	// appended. The handle is the same *Transaction the machine will keep
	// mutating until finalization; callers that need to attach data to it
	// later (the video coordinator attaching an NVR handle) must do so
	// through Machine.AttachNvrEvent rather than mutating the struct
	// directly, since the machine may be concurrently appending lines.
	OnStart func(t *Transaction)

	// OnLine fires after each line is appended to the in-flight
	// transaction, carrying the rendered record and its position.
	OnLine func(t *Transaction, rec LineRecord)

	// OnEnd fires once a transaction finalizes. linesPayloads is either a
	// single slice containing every line (batched mode) or one
	// single-element slice per line (per-line mode); either way every
	// record across the payloads preserves ingest order.
	OnEnd func(linesPayloads [][]LineRecord, summary Summary)
}

// Machine drives the IDLE/IN_TXN lifecycle described for the printer-line
// stream. It is safe for concurrent calls to Feed and AttachNvrEvent, but
// is meant to be fed by a single serial-ingest task; concurrency safety
// exists to let the video coordinator's async NVR response race with
// ongoing ingest without corrupting the buffer.
type Machine struct {
	mu sync.Mutex

	device      DeviceInfo
	batchLines  bool
	state       State
	cur         *Transaction
	cb          Callbacks
}

// NewMachine constructs a Machine in the IDLE state.
func NewMachine(device DeviceInfo, batchLines bool, cb Callbacks) *Machine {
	return &Machine{
		device:     device,
		batchLines: batchLines,
		state:      StateIdle,
		cb:         cb,
	}
}

// State reports the machine's current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// idleStartTypes is the set of line types that open a new transaction when
// observed from IDLE.
var idleStartTypes = map[classify.LineType]bool{
	classify.TypeItem:            true,
	classify.TypeTotal:           true,
	classify.TypeCash:            true,
	classify.TypeDebit:           true,
	classify.TypeCredit:          true,
	classify.TypePreauth:         true,
	classify.TypeUnknown:         true,
	classify.TypeEndHeader:       true,
	classify.TypeAgeVerification: true,
}

// Feed classifies a single raw logical line (already delimited by the
// serial reassembler on CRLF/LF) and drives the state machine through
// whatever transitions result, including the mashed-packet split.
func (m *Machine) Feed(raw string, arrivedAt time.Time) {
	for _, cl := range classify.ClassifyRaw(raw) {
		m.process(cl, arrivedAt)
	}
}

func (m *Machine) process(cl classify.ClassifiedLine, arrivedAt time.Time) {
	m.mu.Lock()

	switch m.state {
	case StateIdle:
		if cl.Type == classify.TypeIgnore || cl.Type == classify.TypeEmpty || cl.Type == classify.TypeCashier {
			m.mu.Unlock()
			return
		}
		if !idleStartTypes[cl.Type] {
			m.mu.Unlock()
			return
		}
		m.cur = &Transaction{
			ID:        uuid.New().String(),
			StartedAt: arrivedAt,
		}
		m.state = StateInTxn
		t := m.cur
		onStart := m.cb.OnStart
		m.mu.Unlock()

		if onStart != nil {
			onStart(t)
		}

		m.mu.Lock()
		m.appendAndHandle(cl, arrivedAt)
		m.mu.Unlock()
		return

	case StateInTxn:
		if cl.Type == classify.TypeIgnore || cl.Type == classify.TypeEmpty {
			m.mu.Unlock()
			return
		}
		m.appendAndHandle(cl, arrivedAt)
		m.mu.Unlock()
		return
	}

	m.mu.Unlock()
}

// appendAndHandle must be called with mu held. It implements the IN_TXN
// transitions for end_header, cashier, and ordinary lines.
func (m *Machine) appendAndHandle(cl classify.ClassifiedLine, arrivedAt time.Time) {
	t := m.cur

	switch cl.Type {
	case classify.TypeEndHeader:
		t.StoreID = cl.StoreID
		t.DrawerID = cl.DrawerID
		t.TransactionNumber = cl.TxnNumber
		// end_header carries pure metadata: it back-fills every line already
		// buffered but is not itself materialized as a line record, so a
		// transaction closed by a mashed header+cashier packet emits exactly
		// one record for the footer (the cashier line), not two.
		return

	case classify.TypeCashier:
		t.CashierName = cl.CashierName
		rec := m.appendLine(cl, arrivedAt)
		onLine := m.cb.OnLine
		if onLine != nil {
			m.mu.Unlock()
			onLine(t, rec)
			m.mu.Lock()
		}
		m.finalize()
		return

	default:
		rec := m.appendLine(cl, arrivedAt)
		onLine := m.cb.OnLine
		if onLine != nil {
			m.mu.Unlock()
			onLine(t, rec)
			m.mu.Lock()
		}
	}
}

// appendLine records cl as the next position in the current transaction and
// returns the rendered LineRecord. Must be called with mu held.
func (m *Machine) appendLine(cl classify.ClassifiedLine, arrivedAt time.Time) LineRecord {
	t := m.cur
	pos := t.nextPos
	t.nextPos++

	var nvrURL *string
	if t.NvrEvent != nil {
		u := t.NvrEvent.URL
		nvrURL = &u
	}

	entry := line{classified: cl, arrivedAt: arrivedAt, position: pos, nvrURL: nvrURL}
	t.lines = append(t.lines, entry)

	return m.renderLine(t, entry)
}

func (m *Machine) renderLine(t *Transaction, e line) LineRecord {
	cl := e.classified

	rec := LineRecord{
		DeviceID:           m.device.DeviceID,
		DeviceName:         m.device.DeviceName,
		DeviceTimestamp:    e.arrivedAt.UTC(),
		Type:               cl.Type,
		Description:        cl.Description,
		Raw:                cl.Raw,
		ParsedSuccessfully: cl.Type != classify.TypeUnknown,
		Position:           e.position,
		Pos: PosMetadata{
			PosType:       m.device.PosType,
			ParserVersion: m.device.ParserVersion,
			TerminalID:    m.device.TerminalID,
			DrawerID:      t.DrawerID,
			StoreID:       t.StoreID,
		},
		NvrEventURL: e.nvrURL,
	}

	if t.TransactionNumber != "" {
		n := t.TransactionNumber
		rec.TransactionNumber = &n
	}
	if cl.HasQty {
		q := cl.Qty
		rec.Qty = &q
	}
	if cl.HasAmount {
		a := cl.Amount
		rec.Amount = &a
	}

	return rec
}

// finalize must be called with mu held. It builds the line and summary
// payloads, resets the machine to IDLE, and invokes OnEnd outside the lock.
func (m *Machine) finalize() {
	t := m.cur
	m.cur = nil
	m.state = StateIdle

	// Metadata discovered after a line was buffered (end_header arriving
	// mid-transaction) must back-fill every already-buffered line before
	// the final render pass, per the transaction invariant.
	records := make([]LineRecord, len(t.lines))
	for i, e := range t.lines {
		records[i] = m.renderLine(t, e)
	}

	summary := buildSummary(m.device, t, records)

	var payloads [][]LineRecord
	if m.batchLines {
		payloads = [][]LineRecord{records}
	} else {
		payloads = make([][]LineRecord, len(records))
		for i, r := range records {
			payloads[i] = []LineRecord{r}
		}
	}

	onEnd := m.cb.OnEnd
	m.mu.Unlock()
	logger.Info("transaction finalized",
		"txn_id", t.ID,
		"transaction_number", t.TransactionNumber,
		"line_count", len(records))
	if onEnd != nil {
		onEnd(payloads, summary)
	}
	m.mu.Lock()
}

// Flush forcibly finalizes any in-flight transaction, emitting it through
// OnEnd exactly as a cashier line would. Intended for graceful shutdown,
// where the serial stream can be interrupted mid-transaction and whatever
// lines were captured still need to reach the queue. A no-op when idle.
func (m *Machine) Flush() {
	m.mu.Lock()
	if m.cur == nil {
		m.mu.Unlock()
		return
	}
	m.finalize()
	m.mu.Unlock()
}

// AttachNvrEvent back-fills the NVR event handle onto the named transaction
// if it is still open, updating every already-buffered line's NVR URL.
// Called asynchronously once the video coordinator's create call returns;
// a no-op if the transaction already finalized or IDs no longer match.
func (m *Machine) AttachNvrEvent(txnID, eventID, url string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cur == nil || m.cur.ID != txnID {
		return
	}

	m.cur.NvrEvent = &NvrEventHandle{EventID: eventID, URL: url}
	for i := range m.cur.lines {
		u := url
		m.cur.lines[i].nvrURL = &u
	}
}

func buildSummary(device DeviceInfo, t *Transaction, records []LineRecord) Summary {
	s := Summary{
		DeviceID:      device.DeviceID,
		DeviceName:    device.DeviceName,
		TerminalID:    device.TerminalID,
		PosType:       device.PosType,
		TransactionID: t.ID,
		LineCount:     len(records),
		StartedAt:     t.StartedAt.UTC(),
		CompletedAt:   time.Now().UTC(),
		Pos: PosMetadata{
			PosType:       device.PosType,
			ParserVersion: device.ParserVersion,
			TerminalID:    device.TerminalID,
			DrawerID:      t.DrawerID,
			StoreID:       t.StoreID,
		},
	}

	if t.TransactionNumber != "" {
		n := t.TransactionNumber
		s.TransactionNumber = &n
	}
	if t.NvrEvent != nil {
		id := t.NvrEvent.EventID
		s.NvrEventID = &id
	}

	for _, r := range records {
		if r.Type == classify.TypeItem {
			s.ItemCount++
		}
		if r.Type == classify.TypeTotal && r.Amount != nil {
			a := *r.Amount
			s.TotalAmount = &a
		}
		if classify.IsTender(r.Type) && r.Amount != nil {
			addTender(&s.Tenders, r.Type, *r.Amount)
		}
	}

	return s
}

func addTender(t *TenderTotals, typ classify.LineType, amt money.Amount) {
	switch typ {
	case classify.TypeCash:
		t.Cash = addAmount(t.Cash, amt)
	case classify.TypeCredit:
		t.Credit = addAmount(t.Credit, amt)
	case classify.TypeDebit:
		t.Debit = addAmount(t.Debit, amt)
	case classify.TypePreauth:
		t.Preauth = addAmount(t.Preauth, amt)
	}
}

func addAmount(cur *money.Amount, amt money.Amount) *money.Amount {
	if cur == nil {
		sum := amt
		return &sum
	}
	sum := cur.Add(amt)
	return &sum
}

package classify

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/posagent/posagentd/internal/money"
)

const (
	esc byte = 0x1b
)

var (
	csiPattern      = regexp.MustCompile(`\x1b\[[0-9;?]*[\x20-\x2f]*[\x40-\x7e]`)
	timestampPattern = regexp.MustCompile(`\d{2}/\d{2}/\d{2} \d{2}:\d{2}:\d{2} \d{3}`)

	endHeaderPattern = regexp.MustCompile(`\bST#(\S+)\s+DR#(\S+)\s+TRAN#(\d+)`)
	cashierPattern   = regexp.MustCompile(`\bCSH:\s*([A-Z0-9 .'-]+)`)
	headerMarker     = regexp.MustCompile(`\bST#`)
	cashierMarker    = regexp.MustCompile(`\bCSH:`)
	itemPattern      = regexp.MustCompile(`^(.+?)\s+(-?\d+(?:\.\d+)?)\s+(-?\d+(?:\.\d{1,2})?)$`)
	ageVerifPattern  = regexp.MustCompile(`DOB Verification:\s*(BYPASS|APPROVED|DENIED)(?:\s+Trans#(\d+))?`)

	tenderKeywords = []struct {
		typ     LineType
		pattern *regexp.Regexp
	}{
		{TypeTotal, regexp.MustCompile(`^TOTAL\s+(-?\d+(?:\.\d{1,2})?)$`)},
		{TypeCash, regexp.MustCompile(`^CASH\s+(-?\d+(?:\.\d{1,2})?)$`)},
		{TypeDebit, regexp.MustCompile(`^DEBIT\s+(-?\d+(?:\.\d{1,2})?)$`)},
		{TypeCredit, regexp.MustCompile(`^CREDIT\s+(-?\d+(?:\.\d{1,2})?)$`)},
		{TypePreauth, regexp.MustCompile(`^PREAUTH\s+(-?\d+(?:\.\d{1,2})?)$`)},
	}
)

// Clean strips printer control codes from a single logical line, in the
// order the cleaning rules require. The result contains only printable
// ASCII (plus any CR/LF that slipped through line reassembly).
func Clean(line string) string {
	b := []byte(line)
	b = stripKnownEscapes(b)
	b = csiPattern.ReplaceAll(b, nil)
	b = stripTwoByteEscapes(b)
	b = stripNonPrintable(b)
	b = stripLeadingC0(b)
	return strings.TrimSpace(string(b))
}

// stripKnownEscapes removes the two fixed printer sequences ESC 'c' '0' and
// ESC '!' NUL wherever they occur.
func stripKnownEscapes(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); {
		if b[i] == esc && i+2 < len(b) && b[i+1] == 'c' && b[i+2] == '0' {
			i += 3
			continue
		}
		if b[i] == esc && i+2 < len(b) && b[i+1] == '!' && b[i+2] == 0x00 {
			i += 3
			continue
		}
		out = append(out, b[i])
		i++
	}
	return out
}

// stripTwoByteEscapes removes any remaining ESC followed by a single byte.
func stripTwoByteEscapes(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); {
		if b[i] == esc && i+1 < len(b) {
			i += 2
			continue
		}
		if b[i] == esc {
			// trailing lone ESC with nothing after it
			i++
			continue
		}
		out = append(out, b[i])
		i++
	}
	return out
}

// stripNonPrintable drops any byte outside 0x20-0x7E except CR and LF.
func stripNonPrintable(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for _, c := range b {
		if c == '\r' || c == '\n' {
			out = append(out, c)
			continue
		}
		if c >= 0x20 && c <= 0x7e {
			out = append(out, c)
		}
	}
	return out
}

// stripLeadingC0 drops a literal "c0" prefix that survived stripKnownEscapes
// because the ESC byte itself had already been consumed by an upstream
// control-code filter, leaving the bare marker at line start.
func stripLeadingC0(b []byte) []byte {
	if len(b) >= 2 && b[0] == 'c' && b[1] == '0' {
		return b[2:]
	}
	return b
}

// SplitMashedEnd splits a single cleaned line into one or two logical lines
// when it concatenates an end-of-receipt header with the cashier stamp that
// immediately follows it in the same serial read.
func SplitMashedEnd(s string) []string {
	hasHeader := headerMarker.MatchString(s)
	hasCashier := cashierMarker.MatchString(s)

	if hasHeader && hasCashier {
		if loc := findTimestampBeforeCashier(s); loc >= 0 {
			return []string{strings.TrimSpace(s[:loc]), strings.TrimSpace(s[loc:])}
		}
		// No timestamp precedes the cashier marker: the header and cashier
		// stamp are still two logical lines (store/drawer/txn info vs. the
		// cashier name and trailing punch time), so split at the marker.
		if loc := cashierMarker.FindStringIndex(s); loc != nil {
			return []string{strings.TrimSpace(s[:loc[0]]), strings.TrimSpace(s[loc[0]:])}
		}
	}

	matches := timestampPattern.FindAllStringIndex(s, -1)
	if len(matches) >= 2 {
		splitAt := matches[1][0]
		return []string{strings.TrimSpace(s[:splitAt]), strings.TrimSpace(s[splitAt:])}
	}

	return []string{s}
}

// findTimestampBeforeCashier locates the start of the timestamp pattern that
// immediately precedes the CSH: marker, returning -1 if none is found.
func findTimestampBeforeCashier(s string) int {
	loc := cashierMarker.FindStringIndex(s)
	if loc == nil {
		return -1
	}
	cshIdx := loc[0]

	matches := timestampPattern.FindAllStringIndex(s, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		if matches[i][1] <= cshIdx {
			return matches[i][0]
		}
	}
	return -1
}

// Classify tags a cleaned logical line with one of the closed set of line
// kinds. Classify is pure and safe for concurrent use.
func Classify(cleaned string) ClassifiedLine {
	if cleaned == "" {
		return ClassifiedLine{Type: TypeEmpty, Raw: cleaned}
	}

	if m := endHeaderPattern.FindStringSubmatch(cleaned); m != nil {
		return ClassifiedLine{
			Type:      TypeEndHeader,
			Raw:       cleaned,
			StoreID:   m[1],
			DrawerID:  m[2],
			TxnNumber: m[3],
		}
	}

	if m := cashierPattern.FindStringSubmatch(cleaned); m != nil {
		return ClassifiedLine{
			Type:        TypeCashier,
			Raw:         cleaned,
			CashierName: strings.TrimSpace(m[1]),
		}
	}

	for _, kw := range tenderKeywords {
		if m := kw.pattern.FindStringSubmatch(cleaned); m != nil {
			amt, err := money.Parse(m[1])
			if err != nil {
				continue
			}
			return ClassifiedLine{Type: kw.typ, Raw: cleaned, Amount: amt, HasAmount: true}
		}
	}

	if m := ageVerifPattern.FindStringSubmatch(cleaned); m != nil {
		return ClassifiedLine{
			Type:                  TypeAgeVerification,
			Raw:                   cleaned,
			AgeVerificationStatus: m[1],
			AgeVerificationTxn:    m[2],
		}
	}

	if m := itemPattern.FindStringSubmatch(cleaned); m != nil {
		qty, qtyErr := strconv.ParseFloat(m[2], 64)
		amt, amtErr := money.Parse(m[3])
		if qtyErr == nil && amtErr == nil {
			return ClassifiedLine{
				Type:        TypeItem,
				Raw:         cleaned,
				Description: strings.TrimSpace(m[1]),
				Qty:         qty,
				HasQty:      true,
				Amount:      amt,
				HasAmount:   true,
			}
		}
	}

	if strings.HasPrefix(cleaned, "ALARM") {
		return ClassifiedLine{Type: TypeIgnore, Raw: cleaned}
	}

	return ClassifiedLine{Type: TypeUnknown, Raw: cleaned}
}

// ClassifyRaw runs the full pipeline — clean, mashed-packet split, classify
// — on a single raw line read from the serial port, returning one
// ClassifiedLine per logical line produced by the split.
func ClassifyRaw(raw string) []ClassifiedLine {
	cleaned := Clean(raw)
	parts := SplitMashedEnd(cleaned)
	lines := make([]ClassifiedLine, 0, len(parts))
	for _, p := range parts {
		lines = append(lines, Classify(p))
	}
	return lines
}

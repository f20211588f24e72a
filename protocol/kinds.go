package protocol

// Kind identifies the type of an event. Unrecognized kinds are stored in
// the log and trigger no coordinator side effects.
type Kind uint8

// Event kinds understood by the coordinator. KindReceiptSubmit and
// KindEpochSummary are authored by the coordinator itself when recording
// receipt acceptance and settlement outcomes.
const (
	KindFund          Kind = 0x01
	KindAnnounce      Kind = 0x02
	KindPost          Kind = 0x03
	KindHost          Kind = 0x04
	KindReceiptSubmit Kind = 0x05
	KindEpochSummary  Kind = 0x06
	KindList          Kind = 0x07
	KindPinPolicy     Kind = 0x08
)

var kindNames = map[Kind]string{
	KindFund:          "FUND",
	KindAnnounce:      "ANNOUNCE",
	KindPost:          "POST",
	KindHost:          "HOST",
	KindReceiptSubmit: "RECEIPT_SUBMIT",
	KindEpochSummary:  "EPOCH_SUMMARY",
	KindList:          "LIST",
	KindPinPolicy:     "PIN_POLICY",
}

// String returns the protocol name of known kinds and a hex form for the
// rest.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "KIND_" + hexDigits(uint8(k))
}

func hexDigits(b uint8) string {
	const digits = "0123456789abcdef"
	return "0x" + string([]byte{digits[b>>4], digits[b&0x0f]})
}

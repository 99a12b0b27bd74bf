package monitor

import (
	"strconv"
	"strings"

	"salebot/internal/alert"
	"salebot/internal/rowsource"
	"salebot/internal/settings"
)

// Outcome is the verdict for one appended row.
type Outcome int

const (
	// Malformed rows are not sale records: fewer than three cells, an empty
	// product, or a quantity that is not an integer.
	Malformed Outcome = iota
	BelowThreshold
	NoRecipient
	Notify
)

func (o Outcome) String() string {
	switch o {
	case Malformed:
		return "malformed"
	case BelowThreshold:
		return "below_threshold"
	case NoRecipient:
		return "no_recipient"
	case Notify:
		return "notify"
	default:
		return "unknown"
	}
}

type Result struct {
	Outcome Outcome
	// Sale is filled for every outcome except Malformed.
	Sale alert.Sale
	// ChatID is the recipient when Outcome is Notify.
	ChatID int64
}

// ParseSale extracts product, quantity and customer from the first three
// cells. Cells are trimmed.
func ParseSale(row rowsource.Row) (alert.Sale, bool) {
	if len(row) < 3 {
		return alert.Sale{}, false
	}
	product := strings.TrimSpace(row.Cell(0))
	if product == "" {
		return alert.Sale{}, false
	}
	qty, err := strconv.Atoi(strings.TrimSpace(row.Cell(1)))
	if err != nil {
		return alert.Sale{}, false
	}
	return alert.Sale{
		Product:  product,
		Quantity: qty,
		Customer: strings.TrimSpace(row.Cell(2)),
	}, true
}

// Classify decides what to do with one appended row given the current
// settings. A sale is sent only when its quantity is strictly greater than
// the threshold and a chat is registered.
func Classify(row rowsource.Row, st settings.Settings) Result {
	sale, ok := ParseSale(row)
	if !ok {
		return Result{Outcome: Malformed}
	}
	if sale.Quantity <= st.Threshold {
		return Result{Outcome: BelowThreshold, Sale: sale}
	}
	if st.ChatID == nil {
		return Result{Outcome: NoRecipient, Sale: sale}
	}
	return Result{Outcome: Notify, Sale: sale, ChatID: *st.ChatID}
}

package order

import (
	"strconv"

	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jlexer"

	"consensus-trader/pkg/exchanges/common"
)

// ExecutionReport is the user data stream's order update. Numeric fields
// arrive as strings and are kept that way until Order converts them.
type ExecutionReport struct {
	EventTime         int64
	Symbol            string
	ClientOrderID     string
	OrigClientOrderID string // set on cancels; ClientOrderID is then the cancel's own id
	Side              string
	OrderType         string
	TimeInForce       string
	Qty               string
	Price             string
	ExecutionType     string
	Status            string
	RejectReason      string
	OrderID           int64
	LastQty           string
	CumulativeQty     string
	LastPrice         string
	Commission        string
	CommissionAsset   string
	TransactionTime   int64
	TradeID           int64
	IsMaker           bool
	CumulativeQuote   string
	OrderCreationTime int64
}

var _ easyjson.Unmarshaler = (*ExecutionReport)(nil)

// OwnerClientID is the id the order was placed with.
func (r ExecutionReport) OwnerClientID() string {
	if r.OrigClientOrderID != "" {
		return r.OrigClientOrderID
	}
	return r.ClientOrderID
}

// Order converts the report into the venue-neutral order view.
func (r ExecutionReport) Order() common.Order {
	updated := r.TransactionTime
	if updated == 0 {
		updated = r.EventTime
	}
	return common.Order{
		OrderID:       r.OrderID,
		ClientOrderID: r.OwnerClientID(),
		Symbol:        r.Symbol,
		Side:          common.Side(r.Side),
		Type:          common.OrderType(r.OrderType),
		Status:        common.ParseOrderStatus(r.Status),
		Price:         parseFloat(r.Price),
		OrigQty:       parseFloat(r.Qty),
		ExecutedQty:   parseFloat(r.CumulativeQty),
		CumQuote:      parseFloat(r.CumulativeQuote),
		UpdateTime:    updated,
	}
}

// UnmarshalEasyJSON decodes the compact single-letter Binance keys. Keys
// differ only by case ("c" and "C"), so matching is exact.
func (r *ExecutionReport) UnmarshalEasyJSON(in *jlexer.Lexer) {
	isTopLevel := in.IsStart()
	if in.IsNull() {
		if isTopLevel {
			in.Consumed()
		}
		in.Skip()
		return
	}
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		if in.IsNull() {
			in.Skip()
			in.WantComma()
			continue
		}
		switch key {
		case "E":
			r.EventTime = in.Int64()
		case "s":
			r.Symbol = in.String()
		case "c":
			r.ClientOrderID = in.String()
		case "C":
			r.OrigClientOrderID = in.String()
		case "S":
			r.Side = in.String()
		case "o":
			r.OrderType = in.String()
		case "f":
			r.TimeInForce = in.String()
		case "q":
			r.Qty = in.String()
		case "p":
			r.Price = in.String()
		case "x":
			r.ExecutionType = in.String()
		case "X":
			r.Status = in.String()
		case "r":
			r.RejectReason = in.String()
		case "i":
			r.OrderID = in.Int64()
		case "l":
			r.LastQty = in.String()
		case "z":
			r.CumulativeQty = in.String()
		case "L":
			r.LastPrice = in.String()
		case "n":
			r.Commission = in.String()
		case "N":
			r.CommissionAsset = in.String()
		case "T":
			r.TransactionTime = in.Int64()
		case "t":
			r.TradeID = in.Int64()
		case "m":
			r.IsMaker = in.Bool()
		case "Z":
			r.CumulativeQuote = in.String()
		case "O":
			r.OrderCreationTime = in.Int64()
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
	if isTopLevel {
		in.Consumed()
	}
}

// UnmarshalJSON satisfies json.Unmarshaler.
func (r *ExecutionReport) UnmarshalJSON(data []byte) error {
	l := jlexer.Lexer{Data: data}
	r.UnmarshalEasyJSON(&l)
	return l.Error()
}

// streamEvent reads only the event type of a user data message. Some
// payloads carry a non-string "e"; those are reported as an error.
type streamEvent struct {
	Type string
}

func (e *streamEvent) UnmarshalEasyJSON(in *jlexer.Lexer) {
	isTopLevel := in.IsStart()
	if in.IsNull() {
		if isTopLevel {
			in.Consumed()
		}
		in.Skip()
		return
	}
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		if key == "e" && !in.IsNull() {
			e.Type = in.String()
		} else {
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
	if isTopLevel {
		in.Consumed()
	}
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(v, 64)
	return f
}

package order

import (
	"testing"

	"consensus-trader/pkg/exchanges/common"

	"github.com/mailru/easyjson"
	"github.com/stretchr/testify/require"
)

const filledReport = `{
  "e": "executionReport", "E": 1499405658658, "s": "ETHBTC",
  "c": "cb_4f1a", "S": "BUY", "o": "LIMIT", "f": "GTC",
  "q": "1.00000000", "p": "0.10264410", "P": "0.00000000", "F": "0.00000000",
  "g": -1, "C": "", "x": "TRADE", "X": "FILLED", "r": "NONE",
  "i": 4293153, "l": "1.00000000", "z": "1.00000000", "L": "0.10264410",
  "n": "0.0001", "N": "BNB", "T": 1499405658657, "t": 77, "I": 8641984,
  "w": false, "m": false, "M": true, "O": 1499405658000,
  "Z": "0.10264410", "Y": "0.10264410", "Q": "0.00000000",
  "W": 1499405658000, "V": "NONE"
}`

const cancelReport = `{"e":"executionReport","E":1499405658700,"s":"ETHBTC","c":"web_cancel_1","C":"cb_4f1b",
"S":"SELL","o":"LIMIT","f":"GTC","q":"2","p":"0.2","x":"CANCELED","X":"CANCELED","r":"NONE",
"i":4293154,"l":"0","z":"0.5","L":"0","T":0,"Z":"0.1","O":1499405658100}`

func TestExecutionReportDecode(t *testing.T) {
	var r ExecutionReport
	require.NoError(t, easyjson.Unmarshal([]byte(filledReport), &r))

	require.Equal(t, "ETHBTC", r.Symbol)
	require.Equal(t, "cb_4f1a", r.OwnerClientID())
	require.False(t, r.IsMaker)
	require.Equal(t, int64(77), r.TradeID)

	o := r.Order()
	require.Equal(t, int64(4293153), o.OrderID)
	require.Equal(t, common.SideBuy, o.Side)
	require.Equal(t, common.StatusFilled, o.Status)
	require.Equal(t, 1.0, o.ExecutedQty)
	require.InDelta(t, 0.1026441, o.AvgFillPrice(), 1e-9)
	require.Equal(t, int64(1499405658657), o.UpdateTime)
}

func TestExecutionReportCancelUsesOriginalClientID(t *testing.T) {
	var r ExecutionReport
	require.NoError(t, r.UnmarshalJSON([]byte(cancelReport)))

	require.Equal(t, "web_cancel_1", r.ClientOrderID)
	require.Equal(t, "cb_4f1b", r.OwnerClientID())

	o := r.Order()
	require.Equal(t, "cb_4f1b", o.ClientOrderID)
	require.Equal(t, common.StatusCanceled, o.Status)
	require.Equal(t, 0.5, o.ExecutedQty)
	// no transaction time: event time stands in
	require.Equal(t, int64(1499405658700), o.UpdateTime)
}

func TestExecutionReportMalformed(t *testing.T) {
	var r ExecutionReport
	require.Error(t, easyjson.Unmarshal([]byte(`{"e":"executionReport","i":"x"}`), &r))
}

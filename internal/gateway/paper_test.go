package gateway

import (
	"context"
	"testing"

	"consensus-trader/pkg/exchanges/common"

	"github.com/stretchr/testify/require"
)

func TestPaperVenueFills(t *testing.T) {
	p := NewPaperVenue(newFakeVenue(), PaperConfig{InitialBalance: 1000, FeeRate: 0.001}, nil)
	ctx := context.Background()

	buy, err := p.SubmitOrder(ctx, common.OrderRequest{Symbol: "BTCUSDT", Side: common.SideBuy, Type: common.OrderTypeLimit, Qty: 2, Price: 100, ClientID: "cb_1"})
	require.NoError(t, err)
	require.Equal(t, common.StatusFilled, buy.Status)
	require.Equal(t, 100.0, buy.AvgFillPrice())
	require.Equal(t, "cb_1", buy.ClientOrderID)

	sell, err := p.SubmitOrder(ctx, common.OrderRequest{Symbol: "BTCUSDT", Side: common.SideSell, Type: common.OrderTypeMarket, Qty: 2, Price: 110, ClientID: "cb_2"})
	require.NoError(t, err)
	require.Greater(t, sell.OrderID, buy.OrderID)

	bal, err := p.Balance(ctx, "USDT")
	require.NoError(t, err)
	require.InDelta(t, 1000-200.2+219.78, bal.Free, 1e-9)

	hist, err := p.AllOrders(ctx, "BTCUSDT", 10)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	require.Equal(t, common.SideSell, hist[1].Side)

	_, err = p.CancelOrder(ctx, "BTCUSDT", buy.OrderID)
	require.True(t, common.IsRejection(err))
	_, err = p.CancelOrder(ctx, "BTCUSDT", 999)
	require.ErrorIs(t, err, ErrUnknownOrder)
}

func TestPaperVenueCancelReplaceStopsOnFailedCancel(t *testing.T) {
	p := NewPaperVenue(newFakeVenue(), PaperConfig{InitialBalance: 1000}, nil)
	ctx := context.Background()

	buy, err := p.SubmitOrder(ctx, common.OrderRequest{Symbol: "BTCUSDT", Side: common.SideBuy, Type: common.OrderTypeLimit, Qty: 1, Price: 100})
	require.NoError(t, err)

	sell := common.OrderRequest{Symbol: "BTCUSDT", Side: common.SideSell, Type: common.OrderTypeMarket, Qty: 1, Price: 90}
	_, err = p.CancelReplace(ctx, common.CancelReplaceRequest{OrderRequest: sell, CancelOrderID: buy.OrderID})
	require.True(t, common.IsRejection(err))
	_, err = p.CancelReplace(ctx, common.CancelReplaceRequest{OrderRequest: sell, CancelOrderID: 999})
	require.ErrorIs(t, err, ErrUnknownOrder)

	hist, err := p.AllOrders(ctx, "BTCUSDT", 10)
	require.NoError(t, err)
	require.Len(t, hist, 1)
}

func TestPaperVenueNeedsPrice(t *testing.T) {
	p := NewPaperVenue(newFakeVenue(), PaperConfig{}, nil)
	_, err := p.SubmitOrder(context.Background(), common.OrderRequest{Symbol: "BTCUSDT", Side: common.SideBuy, Type: common.OrderTypeMarket, Qty: 1})
	require.True(t, common.IsRejection(err))
}

func TestPaperVenueDelegatesMarketData(t *testing.T) {
	v := newFakeVenue()
	p := NewPaperVenue(v, PaperConfig{}, nil)
	book, err := p.Depth(context.Background(), "BTCUSDT", 20)
	require.NoError(t, err)
	require.Equal(t, 100.0, book.Mid())
	require.Equal(t, 1, v.count("depth"))
}

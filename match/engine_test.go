package match

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketforge/tradecore/account"
	"github.com/marketforge/tradecore/model"
)

func newTestAccount(t *testing.T, balance int64) (*account.Account, *Engine) {
	t.Helper()
	acc := account.New("test", decimal.NewFromInt(balance))
	acc.EnsureInstrument(model.NewInstrument("ES", model.Future, 0))
	return acc, New(acc)
}

func tick(t int64, bid, ask float64) model.Point {
	return model.Point{
		Time: time.Unix(t, 0).UTC(),
		Bid:  decimal.NewFromFloat(bid),
		Ask:  decimal.NewFromFloat(ask),
	}
}

func marketOrder(side model.OrderSide, vol int64) *model.Order {
	return &model.Order{Id: randomID(), Name: "ES", Side: side, Type: model.Market, Volume: decimal.NewFromInt(vol)}
}

var idCounter int

func randomID() string {
	idCounter++
	return time.Unix(int64(idCounter), 0).String()
}

func TestScenario1_SingleMarketBuy(t *testing.T) {
	acc, eng := newTestAccount(t, 50000)
	require.NoError(t, eng.OnTick("ES", tick(0, 100, 101)))

	o := marketOrder(model.Buy, 1)
	require.NoError(t, eng.SubmitOrder(o))

	assert.Equal(t, model.StatusFilled, o.Status)
	assert.True(t, o.Transaction.Price.Equal(decimal.NewFromInt(101)))

	pos, ok := acc.ActivePosition("ES")
	require.True(t, ok)
	assert.Equal(t, model.Buy, pos.Side)
	assert.True(t, pos.Volume.Equal(decimal.NewFromInt(1)))
	assert.True(t, pos.OpenPrice.Equal(decimal.NewFromInt(101)))
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(50000)))
}

func TestScenario2_IncreaseThenClose(t *testing.T) {
	acc, eng := newTestAccount(t, 50000)
	require.NoError(t, eng.OnTick("ES", tick(0, 100, 101)))
	require.NoError(t, eng.SubmitOrder(marketOrder(model.Buy, 1)))

	require.NoError(t, eng.OnTick("ES", tick(1, 102, 103)))
	require.NoError(t, eng.SubmitOrder(marketOrder(model.Buy, 1)))

	pos, ok := acc.ActivePosition("ES")
	require.True(t, ok)
	assert.True(t, pos.Volume.Equal(decimal.NewFromInt(2)))
	assert.True(t, pos.OpenPrice.Equal(decimal.NewFromFloat(102)), "got %s", pos.OpenPrice)

	require.NoError(t, eng.OnTick("ES", tick(2, 105, 106)))
	require.NoError(t, eng.SubmitOrder(marketOrder(model.Sell, 2)))

	_, stillActive := acc.ActivePosition("ES")
	assert.False(t, stillActive)
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(50006)), "got %s", acc.Balance)
}

func TestScenario3_StopTriggering(t *testing.T) {
	acc, eng := newTestAccount(t, 50000)
	require.NoError(t, eng.OnTick("ES", tick(0, 100, 101)))
	require.NoError(t, eng.SubmitOrder(marketOrder(model.Buy, 1)))

	stop := &model.Order{Id: randomID(), Name: "ES", Side: model.Sell, Type: model.Stop, Volume: decimal.NewFromInt(1), Price: decimal.NewFromInt(99)}
	require.NoError(t, eng.SubmitOrder(stop))
	assert.Equal(t, model.StatusPlaced, stop.Status)

	require.NoError(t, eng.OnTick("ES", tick(1, 98, 99)))

	assert.Equal(t, model.StatusFilled, stop.Status)
	_, active := acc.ActivePosition("ES")
	assert.False(t, active)
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(49997)), "got %s", acc.Balance)
}

func TestScenario4_BracketCancellationOnFlat(t *testing.T) {
	acc, eng := newTestAccount(t, 50000)
	require.NoError(t, eng.OnTick("ES", tick(0, 100, 101)))

	buy := marketOrder(model.Buy, 1)
	tp := &model.Order{Id: randomID(), Name: "ES", Side: model.Sell, Type: model.Limit, Volume: decimal.NewFromInt(1), Price: decimal.NewFromInt(110)}
	sl := &model.Order{Id: randomID(), Name: "ES", Side: model.Sell, Type: model.Stop, Volume: decimal.NewFromInt(1), Price: decimal.NewFromInt(95)}
	buy.Orders = []*model.Order{tp, sl}

	require.NoError(t, eng.SubmitOrder(buy))

	_, tpActive := acc.ActiveOrders[tp.Id]
	_, slActive := acc.ActiveOrders[sl.Id]
	assert.True(t, tpActive)
	assert.True(t, slActive)

	require.NoError(t, eng.SubmitOrder(marketOrder(model.Sell, 1)))

	assert.Equal(t, model.StatusCancelled, tp.Status)
	assert.Equal(t, model.StatusCancelled, sl.Status)
	_, tpStillActive := acc.ActiveOrders[tp.Id]
	_, slStillActive := acc.ActiveOrders[sl.Id]
	assert.False(t, tpStillActive)
	assert.False(t, slStillActive)
}

func TestScenario6_Reversal(t *testing.T) {
	acc, eng := newTestAccount(t, 50000)
	require.NoError(t, eng.OnTick("ES", tick(0, 99, 100)))
	require.NoError(t, eng.SubmitOrder(marketOrder(model.Buy, 2)))

	require.NoError(t, eng.OnTick("ES", tick(1, 105, 106)))
	require.NoError(t, eng.SubmitOrder(marketOrder(model.Sell, 5)))

	pos, ok := acc.ActivePosition("ES")
	require.True(t, ok)
	assert.Equal(t, model.Sell, pos.Side)
	assert.True(t, pos.Volume.Equal(decimal.NewFromInt(3)), "got %s", pos.Volume)
	assert.True(t, pos.OpenPrice.Equal(decimal.NewFromInt(105)))
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(50010)), "got %s", acc.Balance)
}

func TestClosePosition_FlattensAtTopOfBookWithoutAnOrder(t *testing.T) {
	acc, eng := newTestAccount(t, 50000)
	require.NoError(t, eng.OnTick("ES", tick(0, 100, 101)))
	require.NoError(t, eng.SubmitOrder(marketOrder(model.Buy, 1)))

	require.NoError(t, eng.OnTick("ES", tick(1, 105, 106)))
	require.NoError(t, eng.ClosePosition("ES"))

	_, active := acc.ActivePosition("ES")
	assert.False(t, active)
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(50004)), "got %s", acc.Balance)
}

func TestClosePosition_NoActivePositionIsNoop(t *testing.T) {
	acc, eng := newTestAccount(t, 50000)
	require.NoError(t, eng.ClosePosition("ES"))
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(50000)))
}

func TestSubmitOrder_RejectsInvalidOrder(t *testing.T) {
	_, eng := newTestAccount(t, 50000)
	o := &model.Order{Id: randomID(), Name: "ES", Side: model.Buy, Type: model.Market, Volume: decimal.Zero}
	require.NoError(t, eng.SubmitOrder(o))
	assert.Equal(t, model.StatusRejected, o.Status)
}

func TestSubmitOrder_RejectsUnknownInstrument(t *testing.T) {
	_, eng := newTestAccount(t, 50000)
	o := &model.Order{Id: randomID(), Name: "NOPE", Side: model.Buy, Type: model.Market, Volume: decimal.NewFromInt(1)}
	require.NoError(t, eng.SubmitOrder(o))
	assert.Equal(t, model.StatusRejected, o.Status)
}

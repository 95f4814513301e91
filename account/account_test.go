package account

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketforge/tradecore/model"
)

func TestNew_SeedsBalance(t *testing.T) {
	acc := New("acct-1", decimal.NewFromInt(1000))
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(1000)))
	assert.True(t, acc.InitialBalance.Equal(decimal.NewFromInt(1000)))
}

func TestAddOrder_RejectsDuplicateId(t *testing.T) {
	acc := New("acct-1", decimal.Zero)
	o := &model.Order{Id: "1", Name: "ES", Side: model.Buy, Volume: decimal.NewFromInt(1), Status: model.StatusPlaced}
	require.NoError(t, acc.AddOrder(o))

	dup := &model.Order{Id: "1", Name: "ES", Side: model.Buy, Volume: decimal.NewFromInt(1), Status: model.StatusPlaced}
	assert.Error(t, acc.AddOrder(dup))
}

func TestPublishRejection_DoesNotMutateState(t *testing.T) {
	acc := New("acct-1", decimal.Zero)
	o := &model.Order{Id: "1", Name: "", Status: model.StatusRejected}
	acc.PublishRejection(o)

	assert.Empty(t, acc.Orders)
	assert.Empty(t, acc.ActiveOrders)
}

func TestRemoveOrder_IdempotentOnCancelled(t *testing.T) {
	acc := New("acct-1", decimal.Zero)
	o := &model.Order{Id: "1", Name: "ES", Status: model.StatusPlaced}
	require.NoError(t, acc.AddOrder(o))

	acc.RemoveOrder("1")
	assert.Equal(t, model.StatusCancelled, o.Status)

	acc.RemoveOrder("1")
	assert.Equal(t, model.StatusCancelled, o.Status)
}

func TestRemoveOrder_UnknownIsNoop(t *testing.T) {
	acc := New("acct-1", decimal.Zero)
	acc.RemoveOrder("does-not-exist")
}

func TestOpenPosition_NewPosition(t *testing.T) {
	acc := New("acct-1", decimal.NewFromInt(1000))
	pos, err := acc.OpenPosition("ES", Fill{Side: model.Buy, Price: decimal.NewFromInt(100), Volume: decimal.NewFromInt(1), Time: time.Unix(0, 0)}, nil)
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.True(t, pos.Volume.Equal(decimal.NewFromInt(1)))
	assert.True(t, pos.OpenPrice.Equal(decimal.NewFromInt(100)))
}

func TestOpenPosition_FlatCloseRealisesPnL(t *testing.T) {
	acc := New("acct-1", decimal.NewFromInt(1000))
	_, err := acc.OpenPosition("ES", Fill{Side: model.Buy, Price: decimal.NewFromInt(100), Volume: decimal.NewFromInt(1), Time: time.Unix(0, 0)}, nil)
	require.NoError(t, err)

	pos, err := acc.OpenPosition("ES", Fill{Side: model.Sell, Price: decimal.NewFromInt(105), Volume: decimal.NewFromInt(1), Time: time.Unix(1, 0)}, nil)
	require.NoError(t, err)
	assert.Nil(t, pos)

	_, active := acc.ActivePosition("ES")
	assert.False(t, active)
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(1005)), "got %s", acc.Balance)
}

func TestOpenPosition_PartialReduceInheritsBrackets(t *testing.T) {
	acc := New("acct-1", decimal.Zero)
	tp := &model.Order{Id: "tp", Name: "ES", Side: model.Sell, Type: model.Limit, Volume: decimal.NewFromInt(2), Price: decimal.NewFromInt(110)}

	_, err := acc.OpenPosition("ES", Fill{Side: model.Buy, Price: decimal.NewFromInt(100), Volume: decimal.NewFromInt(2), Time: time.Unix(0, 0)}, []*model.Order{tp})
	require.NoError(t, err)

	pos, err := acc.OpenPosition("ES", Fill{Side: model.Sell, Price: decimal.NewFromInt(102), Volume: decimal.NewFromInt(1), Time: time.Unix(1, 0)}, nil)
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.True(t, pos.Volume.Equal(decimal.NewFromInt(1)))

	_, stillActive := acc.ActiveOrders[tp.Id]
	assert.True(t, stillActive, "bracket should survive a partial reduce")
}

func TestOpenPosition_RecordsOneDealPerFill(t *testing.T) {
	acc := New("acct-1", decimal.NewFromInt(1000))
	_, err := acc.OpenPosition("ES", Fill{OrderId: "mkt-1", Side: model.Buy, Price: decimal.NewFromInt(100), Volume: decimal.NewFromInt(1), Time: time.Unix(0, 0)}, nil)
	require.NoError(t, err)

	require.Len(t, acc.Deals, 1)
	assert.Equal(t, "mkt-1", acc.Deals[0].OrderId)
	assert.Equal(t, "ES", acc.Deals[0].Name)
	assert.True(t, acc.Deals[0].Price.Equal(decimal.NewFromInt(100)))

	_, err = acc.OpenPosition("ES", Fill{OrderId: "mkt-2", Side: model.Sell, Price: decimal.NewFromInt(105), Volume: decimal.NewFromInt(1), Time: time.Unix(1, 0)}, nil)
	require.NoError(t, err)
	assert.Len(t, acc.Deals, 2)
}

func TestClosePosition_RealisesPnLAndCancelsBrackets(t *testing.T) {
	acc := New("acct-1", decimal.NewFromInt(1000))
	tp := &model.Order{Id: "tp", Name: "ES", Side: model.Sell, Type: model.Limit, Volume: decimal.NewFromInt(1), Price: decimal.NewFromInt(110)}
	pos, err := acc.OpenPosition("ES", Fill{Side: model.Buy, Price: decimal.NewFromInt(100), Volume: decimal.NewFromInt(1), Time: time.Unix(0, 0)}, []*model.Order{tp})
	require.NoError(t, err)

	acc.ClosePosition(pos.Id, decimal.NewFromInt(108), time.Unix(1, 0))

	_, active := acc.ActivePosition("ES")
	assert.False(t, active)
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(1008)), "got %s", acc.Balance)
	assert.Equal(t, model.StatusCancelled, tp.Status)
}

func TestClosePosition_UnknownIdIsNoop(t *testing.T) {
	acc := New("acct-1", decimal.NewFromInt(1000))
	acc.ClosePosition("does-not-exist", decimal.NewFromInt(100), time.Unix(0, 0))
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(1000)))
}

func TestSnap_ReflectsCurrentState(t *testing.T) {
	acc := New("acct-1", decimal.NewFromInt(500))
	o := &model.Order{Id: "1", Name: "ES", Status: model.StatusPlaced}
	require.NoError(t, acc.AddOrder(o))

	snap := acc.Snap()
	assert.Len(t, snap.ActiveOrders, 1)
	assert.True(t, snap.Balance.Equal(decimal.NewFromInt(500)))
}

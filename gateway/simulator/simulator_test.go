package simulator

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketforge/tradecore/model"
)

func writeTickFile(t *testing.T, dir, name string, lines ...string) {
	t.Helper()
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestConnect_DisconnectConnect_Idempotent(t *testing.T) {
	dir := t.TempDir()
	writeTickFile(t, dir, "ES", "0 100 1 101 1")

	sim := New("sim-1", decimal.NewFromInt(1000), dir, 5*time.Millisecond)
	require.True(t, sim.Subscribe(model.NewInstrument("ES", model.Future, 0)).Succeeded())

	resp1 := sim.Connect()
	require.True(t, resp1.Succeeded())

	resp2 := sim.Disconnect()
	require.True(t, resp2.Succeeded())

	resp3 := sim.Connect()
	assert.True(t, resp3.Succeeded())

	sim.Disconnect()
}

func TestDisconnect_WithoutConnect_IsNoop(t *testing.T) {
	dir := t.TempDir()
	sim := New("sim-1", decimal.NewFromInt(1000), dir, 5*time.Millisecond)
	resp := sim.Disconnect()
	assert.True(t, resp.Succeeded())
}

func TestDeleteOrders_OnCancelledOrder_IsNoop(t *testing.T) {
	dir := t.TempDir()
	writeTickFile(t, dir, "ES", "0 100 1 101 1")

	sim := New("sim-1", decimal.NewFromInt(1000), dir, 5*time.Millisecond)
	require.True(t, sim.Subscribe(model.NewInstrument("ES", model.Future, 0)).Succeeded())

	o := &model.Order{Id: "1", Name: "ES", Side: model.Buy, Type: model.Limit, Volume: decimal.NewFromInt(1), Price: decimal.NewFromInt(100)}
	require.True(t, sim.CreateOrders(o).Succeeded())

	resp1 := sim.DeleteOrders(o)
	require.True(t, resp1.Succeeded())

	resp2 := sim.DeleteOrders(o)
	assert.True(t, resp2.Succeeded())
}

func TestGetDom_NotImplemented(t *testing.T) {
	dir := t.TempDir()
	sim := New("sim-1", decimal.NewFromInt(1000), dir, 5*time.Millisecond)
	resp := sim.GetDom("ES")
	assert.False(t, resp.Succeeded())
	assert.Equal(t, "NOT_IMPLEMENTED", resp.Errors[0].Code)
}

func TestFlattenPosition_ClosesActivePositionManually(t *testing.T) {
	dir := t.TempDir()
	writeTickFile(t, dir, "ES", "0 100 1 101 1", "1 102 1 103 1")

	sim := New("sim-1", decimal.NewFromInt(1000), dir, 5*time.Millisecond)
	require.True(t, sim.Subscribe(model.NewInstrument("ES", model.Future, 0)).Succeeded())
	require.True(t, sim.Connect().Succeeded())
	defer sim.Disconnect()

	time.Sleep(30 * time.Millisecond)

	o := &model.Order{Id: "mkt-1", Name: "ES", Side: model.Buy, Type: model.Market, Volume: decimal.NewFromInt(1)}
	require.True(t, sim.CreateOrders(o).Succeeded())

	require.True(t, sim.FlattenPosition("ES").Succeeded())
	assert.Empty(t, sim.GetPositions().Data)
}

func TestFlattenPosition_NoActivePositionIsNoop(t *testing.T) {
	dir := t.TempDir()
	sim := New("sim-1", decimal.NewFromInt(1000), dir, 5*time.Millisecond)
	assert.True(t, sim.FlattenPosition("ES").Succeeded())
}

func TestSimulator_TicksFlowIntoFilledMarketOrder(t *testing.T) {
	dir := t.TempDir()
	writeTickFile(t, dir, "ES", "0 100 1 101 1", "1 102 1 103 1")

	sim := New("sim-1", decimal.NewFromInt(1000), dir, 5*time.Millisecond)
	require.True(t, sim.Subscribe(model.NewInstrument("ES", model.Future, 0)).Succeeded())
	require.True(t, sim.Connect().Succeeded())
	defer sim.Disconnect()

	time.Sleep(30 * time.Millisecond)

	o := &model.Order{Id: "mkt-1", Name: "ES", Side: model.Buy, Type: model.Market, Volume: decimal.NewFromInt(1)}
	require.True(t, sim.CreateOrders(o).Succeeded())
	assert.Equal(t, model.StatusFilled, o.Status)
}

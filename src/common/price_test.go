package common

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"nftdrops/src/config"
	"nftdrops/src/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEurPriceCyclesThroughTable(t *testing.T) {
	o := &PriceOracle{Catalog: testCatalog(), Rates: &fakeRates{rate: decimal.NewFromInt(1)}}
	tests := map[string]int64{"0": 100, "1": 150, "3": 250, "4": 100, "9": 150}
	for tokenID, want := range tests {
		got, err := o.EurPrice("DAO", tokenID)
		require.NoError(t, err)
		assert.True(t, got.Equal(decimal.NewFromInt(want)), "token %s: %s", tokenID, got)
	}

	_, err := o.EurPrice("DAO", "first")
	assert.True(t, errors.Is(err, types.ErrInvalidRequest))
	_, err = o.EurPrice("Nope", "1")
	assert.True(t, errors.Is(err, types.ErrUnknownProject))
}

func TestNativePriceRoundsUp(t *testing.T) {
	catalog := config.NewCatalog(
		&config.Project{Name: "DAO", NativeCoinID: "matic-network", PricesEUR: []float64{100}},
		&config.Project{Name: "Cakes", NativeCoinID: "ethereum", PricesEUR: []float64{25}, PriceDecimals: 4},
	)
	o := &PriceOracle{Catalog: catalog, Rates: &fakeRates{rate: decimal.RequireFromString("0.48")}}

	// 100 / 0.48 = 208.33..
	got, err := o.NativePrice(context.Background(), "DAO", "0")
	require.NoError(t, err)
	assert.Equal(t, "209", got.String())

	o.Rates = &fakeRates{rate: decimal.RequireFromString("3120.55")}
	got, err = o.NativePrice(context.Background(), "Cakes", "0")
	require.NoError(t, err)
	assert.Equal(t, "0.0081", got.String())

	q, err := o.Quote(context.Background(), "Cakes", "0")
	require.NoError(t, err)
	assert.Equal(t, "ETH", q.Symbol)
	assert.True(t, q.EUR.Equal(decimal.NewFromInt(25)))
}

func TestNativePriceWithoutRate(t *testing.T) {
	o := &PriceOracle{Catalog: testCatalog(), Rates: &fakeRates{err: types.ErrPriceUnavailable}}
	_, err := o.NativePrice(context.Background(), "DAO", "0")
	assert.True(t, errors.Is(err, types.ErrPriceUnavailable))

	o.Rates = &fakeRates{rate: decimal.Zero}
	_, err = o.NativePrice(context.Background(), "DAO", "0")
	assert.True(t, errors.Is(err, types.ErrPriceUnavailable))
}

func TestEurCents(t *testing.T) {
	o := &PriceOracle{Catalog: testCatalog()}
	cents, err := o.EurCents("DAO", "1", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(45000), cents)
}

func TestWeiConversion(t *testing.T) {
	wei, _ := new(big.Int).SetString("1500000000000000000", 10)
	assert.Equal(t, "1.5", FromWei(wei).String())
	assert.Equal(t, 0, wei.Cmp(ToWei(decimal.RequireFromString("1.5"))))
	assert.True(t, FromWei(nil).IsZero())
}

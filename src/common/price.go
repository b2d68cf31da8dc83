package common

import (
	"context"
	"fmt"
	"math/big"
	"strconv"

	"nftdrops/src/config"
	"nftdrops/src/lib"
	"nftdrops/src/types"

	"github.com/shopspring/decimal"
)

var weiPerUnit = decimal.New(1, 18)

type Quote struct {
	EUR    decimal.Decimal `json:"eur"`
	Native decimal.Decimal `json:"native"`
	Symbol string          `json:"symbol"`
}

// PriceOracle prices tokens from each project's static EUR table and
// converts them to the chain's native coin at the live rate.
type PriceOracle struct {
	Catalog *config.Catalog
	Rates   lib.RateSource
}

// EurPrice cycles through the price table when the token index is past its
// end.
func (o *PriceOracle) EurPrice(projectName, tokenID string) (decimal.Decimal, error) {
	project, err := o.Catalog.Get(projectName)
	if err != nil {
		return decimal.Zero, err
	}
	return eurPrice(project, tokenID)
}

func eurPrice(project *config.Project, tokenID string) (decimal.Decimal, error) {
	if len(project.PricesEUR) == 0 {
		return decimal.Zero, fmt.Errorf("project %s has no prices", project.Name)
	}
	idx, err := strconv.ParseUint(tokenID, 10, 64)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: tokenId %q", types.ErrInvalidRequest, tokenID)
	}
	price := project.PricesEUR[idx%uint64(len(project.PricesEUR))]
	return decimal.NewFromFloat(price), nil
}

// NativePrice rounds up to the project's price decimals, whole units when
// zero. There is no retry: callers must not charge when the rate is missing.
func (o *PriceOracle) NativePrice(ctx context.Context, projectName, tokenID string) (decimal.Decimal, error) {
	project, err := o.Catalog.Get(projectName)
	if err != nil {
		return decimal.Zero, err
	}
	return o.nativePrice(ctx, project, tokenID)
}

func (o *PriceOracle) nativePrice(ctx context.Context, project *config.Project, tokenID string) (decimal.Decimal, error) {
	eur, err := eurPrice(project, tokenID)
	if err != nil {
		return decimal.Zero, err
	}
	rate, err := o.Rates.EurRate(ctx, project.NativeCoinID)
	if err != nil {
		return decimal.Zero, err
	}
	if !rate.IsPositive() {
		return decimal.Zero, types.ErrPriceUnavailable
	}
	return eur.Div(rate).RoundCeil(project.PriceDecimals), nil
}

func (o *PriceOracle) Quote(ctx context.Context, projectName, tokenID string) (*Quote, error) {
	project, err := o.Catalog.Get(projectName)
	if err != nil {
		return nil, err
	}
	eur, err := eurPrice(project, tokenID)
	if err != nil {
		return nil, err
	}
	native, err := o.nativePrice(ctx, project, tokenID)
	if err != nil {
		return nil, err
	}
	return &Quote{EUR: eur, Native: native, Symbol: project.NativeSymbol}, nil
}

// EurCents is the card charge for a purchase.
func (o *PriceOracle) EurCents(projectName, tokenID string, quantity int64) (int64, error) {
	eur, err := o.EurPrice(projectName, tokenID)
	if err != nil {
		return 0, err
	}
	return eur.Mul(decimal.NewFromInt(quantity)).Shift(2).Round(0).IntPart(), nil
}

func FromWei(v *big.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, 0).Div(weiPerUnit)
}

func ToWei(d decimal.Decimal) *big.Int {
	return d.Mul(weiPerUnit).Round(0).BigInt()
}

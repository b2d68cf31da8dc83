package lib

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"nftdrops/src/types"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

const rateCacheTTL = 60 * time.Second

// RateSource returns how many EUR one unit of a native coin is worth.
type RateSource interface {
	EurRate(ctx context.Context, coinID string) (decimal.Decimal, error)
}

// PriceFeed queries a CoinGecko compatible simple price endpoint.
type PriceFeed struct {
	BaseURL string
	Client  *http.Client
	cache   *cache.Cache
}

func NewPriceFeed(baseURL string) *PriceFeed {
	return &PriceFeed{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 10 * time.Second},
		cache:   cache.New(rateCacheTTL, 2*rateCacheTTL),
	}
}

func (f *PriceFeed) EurRate(ctx context.Context, coinID string) (decimal.Decimal, error) {
	if v, ok := f.cache.Get(coinID); ok {
		return v.(decimal.Decimal), nil
	}
	q := url.Values{}
	q.Set("ids", coinID)
	q.Set("vs_currencies", "eur")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("Accept", "application/json")
	res, err := f.Client.Do(req)
	if err != nil {
		log.Printf("[PriceFeed] Error fetching %s rate: %s\n", coinID, err.Error())
		return decimal.Zero, fmt.Errorf("%w: %s", types.ErrPriceUnavailable, err.Error())
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s", types.ErrPriceUnavailable, err.Error())
	}
	if res.StatusCode != http.StatusOK {
		log.Printf("[PriceFeed] %s rate request returned %d\n", coinID, res.StatusCode)
		return decimal.Zero, fmt.Errorf("%w: status %d", types.ErrPriceUnavailable, res.StatusCode)
	}
	rate := gjson.GetBytes(body, gjson.Escape(coinID)+".eur")
	if !rate.Exists() || rate.Float() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: no eur rate for %s", types.ErrPriceUnavailable, coinID)
	}
	d, err := decimal.NewFromString(rate.Raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s", types.ErrPriceUnavailable, err.Error())
	}
	f.cache.SetDefault(coinID, d)
	return d, nil
}

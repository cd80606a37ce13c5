package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// PriceOracle supplies the live vault share price (underlying units per
// share). The price is fetched at call time and never cached across
// operations: it can move between any two instructions.
type PriceOracle interface {
	CurrentPrice(ctx context.Context) (decimal.Decimal, error)
}

// StaticOracle serves a fixed, settable price. Used in tests and the
// in-memory development profile.
type StaticOracle struct {
	mu    sync.RWMutex
	price decimal.Decimal
}

func NewStaticOracle(price decimal.Decimal) *StaticOracle {
	return &StaticOracle{price: price}
}

func (o *StaticOracle) CurrentPrice(ctx context.Context) (decimal.Decimal, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.price, nil
}

// SetPrice updates the served price.
func (o *StaticOracle) SetPrice(price decimal.Decimal) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.price = price
}

// HTTPOracle reads the share price from an external feed returning
// {"price": "<decimal>"}.
type HTTPOracle struct {
	URL    string
	Client *http.Client
}

func NewHTTPOracle(url string) *HTTPOracle {
	return &HTTPOracle{
		URL:    url,
		Client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (o *HTTPOracle) CurrentPrice(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.URL, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("build price request: %w", err)
	}

	resp, err := o.Client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch price: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("price feed returned status %d", resp.StatusCode)
	}

	var body struct {
		Price decimal.Decimal `json:"price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("decode price response: %w", err)
	}
	if body.Price.IsNegative() {
		return decimal.Zero, fmt.Errorf("price feed returned negative price %s", body.Price)
	}
	return body.Price, nil
}

package collector

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/FindoraNetwork/findora-exporter/target"
)

// pathCandlesticks is the gate.io v4 spot candlestick endpoint. Each row is
// [timestamp, volume, close, high, low, open] with numbers as strings.
const pathCandlesticks = "/api/v4/spot/candlesticks"

// priceScale is the fixed-point factor applied to the close price.
const priceScale = 1e6

// price reports the latest 15-minute close of a currency pair, times 10^6,
// rounded. address is the exchange API base, e.g. https://api.gateio.ws.
func (c *collectors) price(ctx context.Context, address string, opts target.Options) (Reading, error) {
	o, err := optionsAs[target.PriceOptions](target.GetPrice, opts)
	if err != nil {
		return Reading{}, err
	}

	query := url.Values{}
	query.Set("interval", "15m")
	query.Set("limit", "1")
	query.Set("currency_pair", o.CurrencyPair)

	res, err := c.getJSON(ctx, address+pathCandlesticks+"?"+query.Encode())
	if err != nil {
		return Reading{}, err
	}

	rows := res.Array()
	if !res.IsArray() || len(rows) != 1 || !rows[0].IsArray() {
		return Reading{}, fmt.Errorf("%w: expected one candlestick for %s", ErrProtocol, o.CurrencyPair)
	}
	row := rows[0].Array()
	if len(row) < 3 || row[2].Type != gjson.String {
		return Reading{}, fmt.Errorf("%w: candlestick for %s has no close price", ErrProtocol, o.CurrencyPair)
	}

	closePrice, err := strconv.ParseFloat(row[2].Str, 64)
	if err != nil {
		return Reading{}, fmt.Errorf("%w: close price %q: %v", ErrParse, row[2].Str, err)
	}
	return Reading{Value: math.Round(closePrice * priceScale)}, nil
}

package ingest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/tinytelemetry/cryptomonitor/internal/model"
)

var (
	// ErrNotTrade marks well-formed frames that carry something other than a trade
	// (subscription acks, other stream kinds).
	ErrNotTrade = errors.New("ingest: frame is not a trade")

	// ErrMalformed marks frames that cannot be decoded.
	ErrMalformed = errors.New("ingest: malformed frame")
)

// ParseTradeFrame decodes one trade frame. Both the combined-stream wrapper
// ({"stream":..,"data":{..}}) and a bare trade payload are accepted.
func ParseTradeFrame(line string) (*model.Trade, error) {
	line = strings.TrimSpace(line)
	if line == "" || !gjson.Valid(line) {
		return nil, ErrMalformed
	}

	payload := gjson.Parse(line)
	if !payload.IsObject() {
		return nil, ErrMalformed
	}
	if data := payload.Get("data"); data.IsObject() {
		payload = data
	}

	if ev := payload.Get("e"); ev.Exists() && ev.String() != "trade" {
		return nil, ErrNotTrade
	}

	symbol := strings.ToUpper(payload.Get("s").String())
	if symbol == "" {
		return nil, ErrNotTrade
	}

	price, err := numberField(payload, "p")
	if err != nil {
		return nil, err
	}
	qty, err := numberField(payload, "q")
	if err != nil {
		return nil, err
	}
	if price <= 0 {
		return nil, fmt.Errorf("%w: non-positive price %v", ErrMalformed, price)
	}

	now := time.Now().UTC()
	tradeTime := now
	if ms := payload.Get("T").Int(); ms > 0 {
		tradeTime = time.UnixMilli(ms).UTC()
	}

	eventID := uuid.NewString()
	if id := payload.Get("t"); id.Exists() {
		eventID = symbol + "-" + id.Raw
	}

	return &model.Trade{
		EventID:      eventID,
		Symbol:       symbol,
		Price:        price,
		Quantity:     qty,
		BuyerIsMaker: payload.Get("m").Bool(),
		TradeTime:    tradeTime,
		ReceivedAt:   now,
	}, nil
}

// numberField reads a numeric field sent either as a JSON number or a string.
func numberField(obj gjson.Result, key string) (float64, error) {
	r := obj.Get(key)
	switch r.Type {
	case gjson.Number:
		return r.Float(), nil
	case gjson.String:
		v, err := strconv.ParseFloat(strings.TrimSpace(r.Str), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: field %q: %v", ErrMalformed, key, err)
		}
		return v, nil
	default:
		return 0, fmt.Errorf("%w: missing field %q", ErrMalformed, key)
	}
}

package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"hydra-signals/internal/domain"
)

// The API serves three response shapes depending on the model version:
// a list of per-timeframe items, an object keyed by timeframe, or an
// object with a "signals" array. Each item is either flat or nests a
// main_signal / correction_signal pair.

// tpValue accepts both a single number and a list of take-profit targets;
// only the first target is kept.
type tpValue struct {
	value *float64
}

func (t *tpValue) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var single float64
	if err := json.Unmarshal(data, &single); err == nil {
		t.value = &single
		return nil
	}
	var list []float64
	if err := json.Unmarshal(data, &list); err == nil {
		if len(list) > 0 {
			first := list[0]
			t.value = &first
		}
		return nil
	}
	return fmt.Errorf("take profit must be a number or a list of numbers")
}

type wireSignal struct {
	Signal       string   `json:"signal"`
	Entry        *float64 `json:"entry"`
	TakeProfit   tpValue  `json:"tp"`
	StopLoss     *float64 `json:"sl"`
	Confidence   *float64 `json:"confidence"`
	RiskReward   *float64 `json:"risk_reward"`
	CurrentPrice *float64 `json:"current_price"`
}

type wireItem struct {
	Timeframe        string      `json:"timeframe"`
	CurrentPrice     *float64    `json:"current_price"`
	MainSignal       *wireSignal `json:"main_signal"`
	CorrectionSignal *wireSignal `json:"correction_signal"`

	wireSignal // flat single-signal shape
}

type wireEnvelope struct {
	Signals []json.RawMessage `json:"signals"`
}

// ParseResponse decodes one of the known response shapes into observations
// for a single instrument. A malformed item yields an observation with a
// zero entry price; the persistence layer rejects those per item so one bad
// timeframe does not discard the rest of the batch.
func ParseResponse(data []byte, ticker string) ([]domain.Observation, error) {
	items, err := splitItems(data)
	if err != nil {
		return nil, fmt.Errorf("parse signal response for %s: %w", ticker, err)
	}

	var observations []domain.Observation
	for _, raw := range items {
		var item wireItem
		if err := json.Unmarshal(raw.data, &item); err != nil {
			return nil, fmt.Errorf("parse signal item for %s: %w", ticker, err)
		}
		if item.Timeframe == "" {
			item.Timeframe = raw.timeframe
		}
		observations = append(observations, itemObservation(ticker, item))
	}
	return observations, nil
}

type rawItem struct {
	timeframe string
	data      json.RawMessage
}

func splitItems(data []byte) ([]rawItem, error) {
	var list []json.RawMessage
	if err := json.Unmarshal(data, &list); err == nil {
		items := make([]rawItem, 0, len(list))
		for _, raw := range list {
			items = append(items, rawItem{data: raw})
		}
		return items, nil
	}

	var envelope wireEnvelope
	if err := json.Unmarshal(data, &envelope); err == nil && len(envelope.Signals) > 0 {
		items := make([]rawItem, 0, len(envelope.Signals))
		for _, raw := range envelope.Signals {
			items = append(items, rawItem{data: raw})
		}
		return items, nil
	}

	var keyed map[string]json.RawMessage
	if err := json.Unmarshal(data, &keyed); err == nil {
		var items []rawItem
		for _, tf := range domain.SupportedTimeframes {
			raw, ok := keyed[tf]
			if !ok {
				continue
			}
			items = append(items, rawItem{timeframe: tf, data: raw})
		}
		if len(items) > 0 {
			return items, nil
		}
	}

	return nil, fmt.Errorf("unrecognized response shape")
}

func itemObservation(ticker string, item wireItem) domain.Observation {
	body := item.wireSignal
	category := domain.CategoryMain
	var correction *domain.Correction

	switch {
	case item.MainSignal != nil:
		body = *item.MainSignal
		if item.CorrectionSignal != nil {
			correction = correctionFrom(*item.CorrectionSignal)
		}
	case item.CorrectionSignal != nil:
		// Correction without a main call: reported against the existing
		// main row for the same ticker and timeframe.
		body = *item.CorrectionSignal
		category = domain.CategoryCorrection
	}

	obs := domain.Observation{
		Ticker:     strings.ToUpper(ticker),
		Timeframe:  item.Timeframe,
		Category:   category,
		Direction:  NormalizeDirection(body.Signal),
		TakeProfit: body.TakeProfit.value,
		StopLoss:   body.StopLoss,
		Confidence: body.Confidence,
		RiskReward: body.RiskReward,
		Correction: correction,
	}
	if body.Entry != nil {
		obs.EntryPrice = *body.Entry
	}

	switch {
	case item.CurrentPrice != nil:
		obs.CurrentPrice = *item.CurrentPrice
	case body.CurrentPrice != nil:
		obs.CurrentPrice = *body.CurrentPrice
	default:
		obs.CurrentPrice = obs.EntryPrice
	}

	return obs
}

func correctionFrom(body wireSignal) *domain.Correction {
	c := &domain.Correction{
		Direction:  NormalizeDirection(body.Signal),
		TakeProfit: body.TakeProfit.value,
		StopLoss:   body.StopLoss,
		Confidence: body.Confidence,
	}
	if body.Entry != nil {
		c.Entry = *body.Entry
	}
	return c
}

// NormalizeDirection maps the synonyms seen across model versions onto the
// canonical direction enum. Anything unrecognized is HOLD.
func NormalizeDirection(raw string) domain.Direction {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "LONG", "BUY", "UP", "BULL", "BULLISH":
		return domain.DirectionLong
	case "SHORT", "SELL", "DOWN", "BEAR", "BEARISH":
		return domain.DirectionShort
	default:
		return domain.DirectionHold
	}
}

package domain

import "time"

type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
	DirectionHold  Direction = "HOLD"
)

func (d Direction) IsActionable() bool {
	return d == DirectionLong || d == DirectionShort
}

type Status string

const (
	StatusNew      Status = "new"
	StatusEntryHit Status = "entry_hit"
	StatusActive   Status = "active"
	StatusTPHit    Status = "tp_hit"
	StatusSLHit    Status = "sl_hit"
	StatusClosed   Status = "closed"
)

// OpenStatuses are the statuses still driven by the execution state machine.
var OpenStatuses = []Status{StatusNew, StatusEntryHit, StatusActive}

func (s Status) IsTerminal() bool {
	return s == StatusTPHit || s == StatusSLHit || s == StatusClosed
}

type Category string

const (
	CategoryMain       Category = "main"
	CategoryCorrection Category = "correction"
)

var SupportedTimeframes = []string{"15m", "1h", "4h", "1d"}

const (
	WarningHighConfidence = "high_confidence"
	WarningLowConfidence  = "low_confidence"
	WarningTrendConflict  = "potential_trend_conflict"

	SeverityInfo    = "info"
	SeverityWarning = "warning"
)

type Warning struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// Correction is the secondary call co-issued with a main signal on the same
// timeframe. It is stored as a sub-record on the main row, never as its own row.
type Correction struct {
	Direction  Direction `json:"direction"`
	Entry      float64   `json:"entry"`
	TakeProfit *float64  `json:"tp,omitempty"`
	StopLoss   *float64  `json:"sl,omitempty"`
	Confidence *float64  `json:"confidence,omitempty"`
}

// Observation is one upstream-reported signal prior to persistence.
type Observation struct {
	Ticker       string
	Timeframe    string
	Category     Category
	Direction    Direction
	EntryPrice   float64
	TakeProfit   *float64
	StopLoss     *float64
	Confidence   *float64
	RiskReward   *float64
	CurrentPrice float64
	Correction   *Correction
	Warnings     []Warning
}

// Signal is a persisted trading signal. EntryPrice, TakeProfit, StopLoss and
// Direction are fixed at creation; CurrentPrice, Confidence and the correction
// sub-record are the only fields a later observation may refresh.
type Signal struct {
	ID           int64       `json:"id"`
	Ticker       string      `json:"ticker"`
	Timeframe    string      `json:"timeframe"`
	Direction    Direction   `json:"direction"`
	EntryPrice   float64     `json:"entry_price"`
	TakeProfit   *float64    `json:"take_profit,omitempty"`
	StopLoss     *float64    `json:"stop_loss,omitempty"`
	Confidence   *float64    `json:"confidence,omitempty"`
	RiskReward   *float64    `json:"risk_reward,omitempty"`
	CurrentPrice float64     `json:"current_price"`
	Status       Status      `json:"status"`
	IsMainSignal bool        `json:"is_main_signal"`
	Correction   *Correction `json:"correction,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

type SignalFilter struct {
	Ticker string
	Status Status
	Limit  int
}

type User struct {
	ID            int64
	TelegramID    int64
	Username      string
	SubscribedAll bool
	CreatedAt     time.Time
}

type Subscription struct {
	ID        int64
	UserID    int64
	Ticker    string
	Frequency string
	CreatedAt time.Time
}

var SupportedFrequencies = []string{"15m", "1h"}

type ErrorEntry struct {
	ID        int64     `json:"id"`
	Source    string    `json:"source"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Frame is one timeframe's worth of a notification payload.
type Frame struct {
	Timeframe  string      `json:"tf"`
	Direction  Direction   `json:"direction"`
	Entry      float64     `json:"entry"`
	TakeProfit *float64    `json:"tp,omitempty"`
	StopLoss   *float64    `json:"sl,omitempty"`
	Confidence *float64    `json:"confidence,omitempty"`
	Warnings   []Warning   `json:"warnings,omitempty"`
	Correction *Correction `json:"correction,omitempty"`
}

// NotificationPayload is what the orchestrator hands to the notification
// transport for one instrument with changed or new signals.
type NotificationPayload struct {
	Pair   string  `json:"pair"`
	Frames []Frame `json:"frames"`
	Source string  `json:"source"`
}

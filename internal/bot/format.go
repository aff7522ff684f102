package bot

import (
	"fmt"
	"strings"
	"time"

	"hydra-signals/internal/domain"
)

func directionMark(d domain.Direction) string {
	switch d {
	case domain.DirectionLong:
		return "📈 LONG"
	case domain.DirectionShort:
		return "📉 SHORT"
	default:
		return "⏸ HOLD"
	}
}

func statusMark(s domain.Status) string {
	switch s {
	case domain.StatusEntryHit:
		return "🎯 entry filled"
	case domain.StatusTPHit:
		return "✅ take profit hit"
	case domain.StatusSLHit:
		return "🛑 stop loss hit"
	default:
		return string(s)
	}
}

func formatPrice(v float64) string {
	if v >= 100 {
		return fmt.Sprintf("%.2f", v)
	}
	return fmt.Sprintf("%.4f", v)
}

func formatOptPrice(v *float64) string {
	if v == nil {
		return "—"
	}
	return formatPrice(*v)
}

// formatNewSignals renders a per-instrument notification as Telegram HTML.
func formatNewSignals(payload domain.NotificationPayload) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>%s</b>\n", payload.Pair)

	for _, frame := range payload.Frames {
		fmt.Fprintf(&sb, "\n<b>%s</b> %s\n", frame.Timeframe, directionMark(frame.Direction))
		fmt.Fprintf(&sb, "Entry: <code>%s</code> | TP: <code>%s</code> | SL: <code>%s</code>\n",
			formatPrice(frame.Entry), formatOptPrice(frame.TakeProfit), formatOptPrice(frame.StopLoss))
		if frame.Confidence != nil {
			fmt.Fprintf(&sb, "Confidence: %.0f%%\n", *frame.Confidence)
		}
		if frame.Correction != nil {
			fmt.Fprintf(&sb, "Correction: %s entry <code>%s</code> tp <code>%s</code>\n",
				directionMark(frame.Correction.Direction),
				formatPrice(frame.Correction.Entry),
				formatOptPrice(frame.Correction.TakeProfit))
		}
		for _, w := range frame.Warnings {
			mark := "ℹ️"
			if w.Severity == domain.SeverityWarning {
				mark = "⚠️"
			}
			fmt.Fprintf(&sb, "%s %s\n", mark, w.Message)
		}
	}

	if payload.Source != "" {
		fmt.Fprintf(&sb, "\n<i>%s</i>", payload.Source)
	}
	return sb.String()
}

// formatTransition renders one lifecycle change as Telegram HTML.
func formatTransition(s domain.Signal) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>%sUSDT %s</b> %s\n", s.Ticker, s.Timeframe, statusMark(s.Status))
	fmt.Fprintf(&sb, "%s entry <code>%s</code>, now <code>%s</code>",
		directionMark(s.Direction), formatPrice(s.EntryPrice), formatPrice(s.CurrentPrice))
	return sb.String()
}

func formatSignalLine(s domain.Signal) string {
	return fmt.Sprintf("#%d %s %s %s %s entry %s at %s",
		s.ID,
		s.Ticker,
		s.Timeframe,
		strings.ToUpper(string(s.Direction)),
		s.Status,
		formatPrice(s.EntryPrice),
		s.CreatedAt.UTC().Format(time.RFC822),
	)
}

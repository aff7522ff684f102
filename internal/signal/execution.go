package signal

import "hydra-signals/internal/domain"

// NextStatus maps a signal and the latest market price to the signal's next
// execution status. It is pure and total for any valid signal and finite
// price; terminal statuses are absorbing and status never moves backward.
func NextStatus(s domain.Signal, currentPrice float64) domain.Status {
	switch s.Status {
	case domain.StatusNew:
		if entryFilled(s.Direction, currentPrice, s.EntryPrice) {
			return domain.StatusEntryHit
		}
		return domain.StatusNew

	case domain.StatusEntryHit, domain.StatusActive:
		stopHit := s.StopLoss != nil && stopLossFired(s.Direction, currentPrice, *s.StopLoss)
		takeHit := s.TakeProfit != nil && takeProfitFired(s.Direction, currentPrice, *s.TakeProfit)

		// Stop-loss wins when both thresholds are satisfied at once.
		if stopHit {
			return domain.StatusSLHit
		}
		if takeHit {
			return domain.StatusTPHit
		}
		return domain.StatusActive
	}

	return s.Status
}

// Entry is a crossing condition: the signal is issued ahead of price reaching
// the entry level, so a LONG fills at or below entry and a SHORT at or above.
func entryFilled(dir domain.Direction, price, entry float64) bool {
	switch dir {
	case domain.DirectionLong:
		return price <= entry
	case domain.DirectionShort:
		return price >= entry
	}
	return false
}

func stopLossFired(dir domain.Direction, price, stop float64) bool {
	switch dir {
	case domain.DirectionLong:
		return price <= stop
	case domain.DirectionShort:
		return price >= stop
	}
	return false
}

func takeProfitFired(dir domain.Direction, price, take float64) bool {
	switch dir {
	case domain.DirectionLong:
		return price >= take
	case domain.DirectionShort:
		return price <= take
	}
	return false
}

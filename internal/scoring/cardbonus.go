package scoring

// MaxCardBonus bounds the externally sourced card-info bonus.
const MaxCardBonus = 50

// CardBonus derives the optional scorecard bonus from upstream card info.
// The shape of the card payload is controlled by the upstream provider; only
// a few well-known keys contribute, everything else is ignored. Returns 0
// for missing or empty info.
func CardBonus(info map[string]any) float64 {
	if len(info) == 0 {
		return 0
	}

	bonus := 15.0 // Having any card record at all is a positive signal.

	if n, ok := asFloat(info["active_cards"]); ok && n > 0 {
		extra := 5 * n
		if extra > 25 {
			extra = 25
		}
		bonus += extra
	}

	if premium, ok := info["premium"].(bool); ok && premium {
		bonus += 10
	}

	if bonus > MaxCardBonus {
		bonus = MaxCardBonus
	}
	return bonus
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

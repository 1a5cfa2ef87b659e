package tp

import (
	"strings"

	"github.com/opipolix/webgate/internal/jsonwalk"
)

// Key sets for fill inference over upstream order payloads, whose schemas
// vary across CLOB endpoints and versions.
var (
	statusKeys = jsonwalk.KeySet("status", "state", "order_status")

	pctKeys = jsonwalk.KeySet(
		"filledpct", "filled_pct", "fill_pct", "filledpercentage", "completion",
	)

	amountKeys = jsonwalk.KeySet(
		"filled", "filledsize", "filled_size",
		"sizematched", "size_matched", "matchedsize", "matched_size",
		"filledamount", "filled_amount",
		"executedsize", "executed_size",
	)
)

// ExtractFilledTokens infers how many tokens of the entry order have
// filled, in order of decreasing signal quality:
//
//  1. A status string containing "filled" but not "partial" means fully
//     filled.
//  2. A percentage-like field is scaled by the entry size; values in (1,
//     100] are read as percent, values in [0, 1] as a ratio.
//  3. Amount-like fields are taken at face value, except that values
//     larger than 1000x the entry size are assumed to be base-6
//     fixed-point and divided by 1e6. The maximum wins.
//
// The result is always clamped to [0, entrySizeTokens].
func ExtractFilledTokens(payload map[string]any, entrySizeTokens float64) float64 {
	if status, ok := jsonwalk.FirstString(payload, statusKeys); ok {
		s := strings.ToLower(status)
		if strings.Contains(s, "filled") && !strings.Contains(s, "partial") {
			return entrySizeTokens
		}
	}

	for _, pct := range jsonwalk.Numbers(payload, pctKeys) {
		if pct >= 0 && pct <= 1 {
			return clamp(pct*entrySizeTokens, entrySizeTokens)
		}
		if pct > 1 && pct <= 100 {
			return clamp(pct/100*entrySizeTokens, entrySizeTokens)
		}
	}

	best := 0.0
	for _, v := range jsonwalk.Numbers(payload, amountKeys) {
		if v > entrySizeTokens*1000 {
			v /= 1e6
		}
		if v > best {
			best = v
		}
	}
	return clamp(best, entrySizeTokens)
}

func clamp(v, max float64) float64 {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

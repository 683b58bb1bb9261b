package cli

import (
	"fmt"
	"strings"

	"github.com/gitquest/gitquest/internal/domain"
)

// ─── Level Bar ──────────────────────────────────────────────────────────────
// Renders progress inside the current level:
//   [=============>................]  45% | 120 / 265 XP to level 4

const barWidth = 30 // Characters for the progress bar

// levelPercent is the share of the current level already earned.
func levelPercent(sum domain.XPSummary) float64 {
	span := sum.XP + sum.XPToNextLevel
	if sum.XPToNextLevel == 0 || span <= 0 {
		return 100
	}
	pct := float64(sum.XP) / float64(span) * 100
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return pct
}

func renderBar(pct float64) string {
	filled := int(pct / 100 * float64(barWidth))
	if filled > barWidth {
		filled = barWidth
	}
	empty := barWidth - filled

	switch {
	case filled == barWidth:
		return "[" + strings.Repeat("=", filled) + "]"
	case filled > 0:
		return "[" + strings.Repeat("=", filled-1) + ">" + strings.Repeat(".", empty) + "]"
	default:
		return "[" + strings.Repeat(".", barWidth) + "]"
	}
}

// levelBar formats the bar with its numbers.
func levelBar(sum domain.XPSummary) string {
	pct := levelPercent(sum)
	if sum.XPToNextLevel == 0 {
		return fmt.Sprintf("%s %3.0f%% | max level", renderBar(pct), pct)
	}
	return fmt.Sprintf("%s %3.0f%% | %d / %d XP to level %d",
		renderBar(pct), pct, sum.XP, sum.XP+sum.XPToNextLevel, sum.Level+1)
}

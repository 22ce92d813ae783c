// Package confirmgate decides whether a crypto deposit has accumulated enough
// network confirmations to be treated as final.
package confirmgate

import (
	"strings"

	"settlement/internal/app/model"
)

// Gate holds the per-asset threshold table. Pure and side-effect free; safe
// to call any number of times for the same transaction.
type Gate struct {
	thresholds map[string]int
	fallback   int
}

func New(thresholds map[string]int, fallback int) *Gate {
	t := make(map[string]int, len(thresholds))
	for asset, n := range thresholds {
		t[strings.ToUpper(asset)] = n
	}
	return &Gate{thresholds: t, fallback: fallback}
}

// Required returns the confirmation threshold for the asset. Assets without
// an explicit entry get the configured fallback.
func (g *Gate) Required(asset string) int {
	if n, ok := g.thresholds[strings.ToUpper(asset)]; ok {
		return n
	}
	return g.fallback
}

// Met reports whether the transaction has reached its asset's threshold.
func (g *Gate) Met(tx *model.Transaction) bool {
	return tx.Confirmations >= g.Required(tx.Asset)
}

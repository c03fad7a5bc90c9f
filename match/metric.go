package match

import (
	"fmt"
	"sort"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

const DefaultMetric = "blend"

// DefaultThreshold is the minimum similarity for a fuzzy match.
const DefaultThreshold = 0.8

// blend averages Smith-Waterman-Gotoh alignment with Sørensen-Dice bigram overlap.
type blend struct {
	align *metrics.SmithWatermanGotoh
	dice  *metrics.SorensenDice
}

func newBlend() *blend {
	return &blend{align: metrics.NewSmithWatermanGotoh(), dice: metrics.NewSorensenDice()}
}

func (b *blend) Compare(a, c string) float64 {
	return (b.align.Compare(a, c) + b.dice.Compare(a, c)) / 2
}

var metricFactories = map[string]func() strutil.StringMetric{
	"blend":                func() strutil.StringMetric { return newBlend() },
	"smith-waterman-gotoh": func() strutil.StringMetric { return metrics.NewSmithWatermanGotoh() },
	"sorensen-dice":        func() strutil.StringMetric { return metrics.NewSorensenDice() },
	"jaro-winkler":         func() strutil.StringMetric { return metrics.NewJaroWinkler() },
	"levenshtein":          func() strutil.StringMetric { return metrics.NewLevenshtein() },
}

// Metrics lists the names accepted by NewMetric.
func Metrics() []string {
	names := make([]string, 0, len(metricFactories))
	for name := range metricFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func NewMetric(name string) (strutil.StringMetric, error) {
	f, ok := metricFactories[name]
	if !ok {
		return nil, fmt.Errorf("match: unknown metric %q (known: %v)", name, Metrics())
	}
	return f(), nil
}

// similarity scores two normalized titles in [0, 1].
func similarity(m strutil.StringMetric, a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	return strutil.Similarity(a, b, m)
}

// Package rfv maintains the Recency–Frequency–Value customer ledger.
// Scores are quintiles computed jointly across the entire customer
// population, never per batch, so any purchase can shift every score.
package rfv

import "sort"

// Segment labels, evaluated in fixed rule order by Classify.
const (
	SegmentChampions   = "champions"
	SegmentLoyal       = "loyal"
	SegmentPotential   = "potential"
	SegmentAtRisk      = "at_risk"
	SegmentHibernating = "hibernating"
	SegmentLost        = "lost"
)

// Classify derives the lifecycle segment from the three quintile scores.
// It is a pure function: rules are evaluated in order, first match wins.
func Classify(recency, frequency, value int) string {
	switch {
	case recency >= 4 && frequency >= 4 && value >= 4:
		return SegmentChampions
	case recency >= 3 && frequency >= 3 && value >= 3:
		return SegmentLoyal
	case recency >= 4 && frequency <= 3 && value <= 3:
		return SegmentPotential
	case recency <= 2 && frequency >= 3 && value >= 3:
		return SegmentAtRisk
	case recency <= 2 && frequency <= 2 && value >= 2 && value <= 4:
		return SegmentHibernating
	default:
		return SegmentLost
	}
}

// quintile maps a value to a 1..5 score from its percentile position in
// the ascending-sorted population. Equal values share the position of
// their first occurrence, so customers with identical metrics always get
// identical scores.
func quintile(sorted []float64, v float64) int {
	n := len(sorted)
	if n == 0 {
		return 1
	}
	idx := sort.SearchFloat64s(sorted, v)
	score := int(float64(idx)/float64(n)*5) + 1
	if score < 1 {
		score = 1
	}
	if score > 5 {
		score = 5
	}
	return score
}

// invertedQuintile scores ascending metrics where smaller is better
// (days since last purchase: more recent means a higher score).
func invertedQuintile(sorted []float64, v float64) int {
	n := len(sorted)
	if n == 0 {
		return 5
	}
	idx := sort.SearchFloat64s(sorted, v)
	score := 5 - int(float64(idx)/float64(n)*5)
	if score < 1 {
		score = 1
	}
	if score > 5 {
		score = 5
	}
	return score
}

// populationScores holds the sorted metric arrays for one rescoring pass.
type populationScores struct {
	recencyDays []float64
	purchases   []float64
	values      []float64
}

func buildPopulationScores(days, purchases, values []float64) *populationScores {
	p := &populationScores{
		recencyDays: append([]float64(nil), days...),
		purchases:   append([]float64(nil), purchases...),
		values:      append([]float64(nil), values...),
	}
	sort.Float64s(p.recencyDays)
	sort.Float64s(p.purchases)
	sort.Float64s(p.values)
	return p
}

func (p *populationScores) score(days, purchases, value float64) (r, f, v int) {
	r = invertedQuintile(p.recencyDays, days)
	f = quintile(p.purchases, purchases)
	v = quintile(p.values, value)
	return r, f, v
}

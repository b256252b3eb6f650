package signal

import (
	"encoding/json"
	"sort"
)

// PartialSet records which partial milestones a tracked signal has
// already fired, keyed by level percentage. Loss-side milestones are
// stored negated so one set covers both directions.
//
// encoding/json cannot key a map by float64, so the set is persisted as
// a sorted array of the levels hit.
type PartialSet map[float64]bool

func (p PartialSet) MarshalJSON() ([]byte, error) {
	levels := make([]float64, 0, len(p))
	for level, hit := range p {
		if hit {
			levels = append(levels, level)
		}
	}
	sort.Float64s(levels)
	return json.Marshal(levels)
}

func (p *PartialSet) UnmarshalJSON(data []byte) error {
	var levels []float64
	if err := json.Unmarshal(data, &levels); err != nil {
		return err
	}
	set := make(PartialSet, len(levels))
	for _, level := range levels {
		set[level] = true
	}
	*p = set
	return nil
}

package merge

import (
	"math"
	"sort"
	"time"

	"github.com/bincheck/binetl/internal/model"
)

const (
	// prioritySpan bounds source priorities for weighting; anything beyond
	// it contributes no priority weight at all.
	prioritySpan = 10

	// DefaultMargin is the minimum weight gap between the two leading
	// values below which a conflict is flagged for manual review.
	DefaultMargin = 50
)

// Resolver scores competing field values and picks a winner. Priority
// dominates: a single priority step outweighs any achievable confidence
// difference, and recency only breaks exact ties.
type Resolver struct {
	Margin float64
	now    func() time.Time
}

func NewResolver(margin float64) *Resolver {
	if margin <= 0 {
		margin = DefaultMargin
	}
	return &Resolver{Margin: margin, now: time.Now}
}

func (r *Resolver) weight(c model.Candidate) float64 {
	priority := c.Priority
	if priority < 1 {
		priority = 1
	}
	if priority > prioritySpan {
		priority = prioritySpan
	}
	w := float64(1000*(prioritySpan-priority)) + float64(10*c.Confidence)

	// Recency contributes strictly less than 1, so it can only separate
	// candidates whose priority and confidence already agree.
	if !c.ObservedAt.IsZero() {
		days := r.now().Sub(c.ObservedAt).Hours() / 24
		if days < 0 {
			days = 0
		}
		w += 1 / (1 + days)
	}
	return w
}

// Resolve picks the highest-weight value among candidates. Candidates are
// expected in priority order so that ties fall to the earlier, more trusted
// entry. When the top two values sit within the margin the conflict is
// marked for review but the leading value is still used provisionally.
func (r *Resolver) Resolve(bin, field string, candidates []model.Candidate) model.Conflict {
	conflict := model.Conflict{
		BIN:        bin,
		Field:      field,
		Candidates: candidates,
	}
	if len(candidates) == 0 {
		return conflict
	}

	type scored struct {
		value  string
		weight float64
	}
	byValue := make(map[string]int, len(candidates))
	ranked := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		w := r.weight(c)
		if i, ok := byValue[c.Value]; ok {
			ranked[i].weight = math.Max(ranked[i].weight, w)
			continue
		}
		byValue[c.Value] = len(ranked)
		ranked = append(ranked, scored{value: c.Value, weight: w})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].weight > ranked[j].weight
	})

	conflict.ResolvedValue = ranked[0].value
	if len(ranked) > 1 && ranked[0].weight-ranked[1].weight < r.Margin {
		conflict.RequiresManualReview = true
	}
	return conflict
}

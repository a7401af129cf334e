package merge

import (
	"github.com/bincheck/binetl/internal/model"
)

// Dedupe collapses exact duplicates within the normalized set, keyed by
// (bin, normalized country code or the unknown sentinel). On collision the
// higher-confidence record is retained; first-seen wins exact ties. The
// returned count feeds pipeline metrics only — Merge re-groups the full
// input by bin independently.
func Dedupe(records []model.NormalizedRecord) ([]model.NormalizedRecord, int) {
	index := make(map[string]int, len(records))
	unique := make([]model.NormalizedRecord, 0, len(records))
	duplicates := 0

	for _, rec := range records {
		code := rec.NormalizedCountryCode
		if code == "" {
			code = model.UnknownCountryCode
		}
		key := rec.BIN + "_" + code

		if i, seen := index[key]; seen {
			duplicates++
			if rec.Confidence > unique[i].Confidence {
				unique[i] = rec
			}
			continue
		}

		index[key] = len(unique)
		unique = append(unique, rec)
	}

	return unique, duplicates
}

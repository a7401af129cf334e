package enrich

import (
	"context"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/bincheck/binetl/internal/model"
)

// SourceName is the provenance label appended to records the enricher
// touched.
const SourceName = "binlist.net"

// completenessFields are the fields tracked in before/after coverage stats.
var completenessFields = []string{"issuer", "url", "phone", "city", "country", "scheme", "brand"}

// Options controls one enrichment pass.
type Options struct {
	// Limit caps how many BINs are attempted per run; the upstream is
	// strictly rate limited for unauthenticated use.
	Limit int
	// OnlyIfMissing skips records that already carry every tracked field.
	OnlyIfMissing bool
}

// EnrichedBIN lists the fields one BIN gained during a pass.
type EnrichedBIN struct {
	BIN         string   `json:"bin"`
	FieldsAdded []string `json:"fields_added"`
}

// Report summarizes one enrichment pass.
type Report struct {
	Timestamp          time.Time      `json:"timestamp"`
	TotalRecords       int            `json:"total_records"`
	NeedingEnrichment  int            `json:"needing_enrichment"`
	Attempted          int            `json:"attempted"`
	Enriched           int            `json:"enriched"`
	CacheHits          int            `json:"cache_hits"`
	Errors             int            `json:"errors"`
	CompletenessBefore map[string]int `json:"completeness_before"`
	CompletenessAfter  map[string]int `json:"completeness_after"`
	TopEnriched        []EnrichedBIN  `json:"top_enriched"`
}

// Enricher fills missing record fields from cached or live lookups.
type Enricher struct {
	client *Client
	cache  Cache
	now    func() time.Time
}

func New(client *Client, cache Cache) *Enricher {
	return &Enricher{client: client, cache: cache, now: time.Now}
}

// NeedsEnrichment reports whether a record is missing any tracked field.
func NeedsEnrichment(rec model.MergedRecord) bool {
	return rec.Issuer == "" || rec.URL == "" || rec.Phone == "" || rec.City == "" ||
		rec.Country == "" || rec.Scheme == "" || rec.Brand == ""
}

// MissingFieldsScore ranks records by how much an enrichment would add.
// Issuer gaps weigh heaviest; city and country code least.
func MissingFieldsScore(rec model.MergedRecord) int {
	score := 0
	if rec.Issuer == "" {
		score += 3
	}
	if rec.URL == "" {
		score += 2
	}
	if rec.Phone == "" {
		score += 2
	}
	if rec.Country == "" {
		score += 2
	}
	if rec.Scheme == "" {
		score += 2
	}
	if rec.Brand == "" {
		score += 2
	}
	if rec.City == "" {
		score += 1
	}
	if rec.CountryCode == "" {
		score += 1
	}
	return score
}

// Enrich mutates records in place, filling empty fields from lookups for the
// highest-scoring candidates up to the limit. Lookup failures are cached and
// counted; they never abort the pass.
func (e *Enricher) Enrich(ctx context.Context, records []model.MergedRecord, opts Options) Report {
	log := zap.L().With(zap.String("component", "enrich"))

	report := Report{
		Timestamp:          e.now().UTC(),
		TotalRecords:       len(records),
		CompletenessBefore: completeness(records),
	}
	if opts.Limit <= 0 {
		opts.Limit = 50
	}

	candidates := make([]int, 0, len(records))
	for i := range records {
		if NeedsEnrichment(records[i]) {
			candidates = append(candidates, i)
		}
	}
	report.NeedingEnrichment = len(candidates)

	sort.SliceStable(candidates, func(a, b int) bool {
		return MissingFieldsScore(records[candidates[a]]) > MissingFieldsScore(records[candidates[b]])
	})
	if len(candidates) > opts.Limit {
		candidates = candidates[:opts.Limit]
	}

	for _, i := range candidates {
		rec := &records[i]
		if opts.OnlyIfMissing && !NeedsEnrichment(*rec) {
			continue
		}
		report.Attempted++

		data, hit, err := e.lookup(ctx, rec.BIN)
		if hit {
			report.CacheHits++
		}
		if err != nil {
			report.Errors++
			log.Warn("lookup failed", zap.String("bin", rec.BIN), zap.Error(err))
			continue
		}
		if data == nil {
			continue
		}

		added := apply(rec, data, e.now().UTC())
		if len(added) > 0 {
			report.Enriched++
			report.TopEnriched = append(report.TopEnriched, EnrichedBIN{BIN: rec.BIN, FieldsAdded: added})
		}
	}

	sort.SliceStable(report.TopEnriched, func(a, b int) bool {
		return len(report.TopEnriched[a].FieldsAdded) > len(report.TopEnriched[b].FieldsAdded)
	})
	if len(report.TopEnriched) > 10 {
		report.TopEnriched = report.TopEnriched[:10]
	}

	report.CompletenessAfter = completeness(records)
	return report
}

// lookup consults the cache and falls through to the API, caching whatever
// comes back, including misses and failures.
func (e *Enricher) lookup(ctx context.Context, bin string) (data *LookupResponse, cacheHit bool, err error) {
	if e.cache != nil {
		entry, err := e.cache.Get(ctx, bin)
		if err != nil {
			zap.L().Warn("cache read failed", zap.String("component", "enrich"),
				zap.String("bin", bin), zap.Error(err))
		} else if entry != nil {
			return entry.Data, true, nil
		}
	}

	data, err = e.client.Lookup(ctx, bin)
	entry := CacheEntry{FetchedAt: e.now().UTC(), Data: data}
	if err != nil {
		entry.Error = err.Error()
	}
	if e.cache != nil {
		if putErr := e.cache.Put(ctx, bin, entry); putErr != nil {
			zap.L().Warn("cache write failed", zap.String("component", "enrich"),
				zap.String("bin", bin), zap.Error(putErr))
		}
	}
	return data, false, err
}

// apply fills empty fields on rec from data and appends provenance when
// anything changed. Existing values are never overwritten.
func apply(rec *model.MergedRecord, data *LookupResponse, now time.Time) []string {
	var added []string
	fill := func(field string, dst *string, value string) {
		if *dst == "" && value != "" {
			*dst = value
			added = append(added, field)
		}
	}

	fill("scheme", &rec.Scheme, data.Scheme)
	fill("brand", &rec.Brand, data.Brand)
	fill("type", &rec.Type, data.Type)
	if data.Bank != nil {
		fill("issuer", &rec.Issuer, data.Bank.Name)
		fill("url", &rec.URL, data.Bank.URL)
		fill("phone", &rec.Phone, data.Bank.Phone)
		fill("city", &rec.City, data.Bank.City)
	}
	if data.Country != nil {
		fill("country", &rec.Country, data.Country.Name)
		fill("country_code", &rec.CountryCode, data.Country.Alpha2)
	}

	if len(added) == 0 {
		return nil
	}

	fields := make(map[string]string, len(added))
	for _, field := range added {
		switch field {
		case "scheme":
			fields[field] = rec.Scheme
		case "brand":
			fields[field] = rec.Brand
		case "type":
			fields[field] = rec.Type
		case "issuer":
			fields[field] = rec.Issuer
		case "url":
			fields[field] = rec.URL
		case "phone":
			fields[field] = rec.Phone
		case "city":
			fields[field] = rec.City
		case "country":
			fields[field] = rec.Country
		case "country_code":
			fields[field] = rec.CountryCode
		}
	}

	rec.LastUpdated = now
	rec.Sources = append(rec.Sources, model.SourceSnapshot{
		Source:        SourceName,
		SourceVersion: "api",
		Confidence:    rec.Confidence,
		Fields:        fields,
	})
	return added
}

// completeness computes per-field coverage percentages over all records.
func completeness(records []model.MergedRecord) map[string]int {
	stats := make(map[string]int, len(completenessFields))
	for _, field := range completenessFields {
		stats[field] = 0
	}
	if len(records) == 0 {
		return stats
	}

	for _, rec := range records {
		for _, field := range completenessFields {
			if fieldSet(rec, field) {
				stats[field]++
			}
		}
	}
	for _, field := range completenessFields {
		stats[field] = int(math.Round(float64(stats[field]) / float64(len(records)) * 100))
	}
	return stats
}

func fieldSet(rec model.MergedRecord, field string) bool {
	switch field {
	case "issuer":
		return rec.Issuer != ""
	case "url":
		return rec.URL != ""
	case "phone":
		return rec.Phone != ""
	case "city":
		return rec.City != ""
	case "country":
		return rec.Country != ""
	case "scheme":
		return rec.Scheme != ""
	case "brand":
		return rec.Brand != ""
	}
	return false
}

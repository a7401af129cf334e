// Package merge collapses normalized per-source records into one canonical
// record per BIN, resolving cross-source field conflicts along the way.
package merge

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/bincheck/binetl/internal/model"
)

// mergeableFields are the record fields that go through candidate collection
// and conflict resolution. Length, luhn, source and raw provenance are taken
// from the primary record instead.
var mergeableFields = []string{
	"country_code",
	"country",
	"scheme",
	"brand",
	"type",
	"issuer",
	"bank_code",
	"branch_code",
	"url",
	"phone",
	"city",
	"program_type",
	"regulatory_type",
}

// SourceRecords pairs a source's normalized output with its identity.
type SourceRecords struct {
	Info    model.SourceInfo
	Records []model.NormalizedRecord
}

// Stats summarizes one merge pass.
type Stats struct {
	TotalRecords      int            `json:"total_records"`
	UniqueBINs        int            `json:"unique_bins"`
	DuplicatesMerged  int            `json:"duplicates_merged"`
	ConflictsResolved int            `json:"conflicts_resolved"`
	FlaggedForReview  int            `json:"flagged_for_review"`
	SourceBreakdown   map[string]int `json:"source_breakdown"`
}

// Result is the output of a merge pass over all sources.
type Result struct {
	Merged    []model.MergedRecord
	Conflicts []model.Conflict
	Errors    []string
	Stats     Stats
}

// Merger groups records by BIN across sources and builds canonical records.
type Merger struct {
	resolver *Resolver
	queue    ReviewQueue
	audit    AuditTrail
	now      func() time.Time
}

func New(resolver *Resolver, queue ReviewQueue, audit AuditTrail) *Merger {
	if resolver == nil {
		resolver = NewResolver(DefaultMargin)
	}
	return &Merger{
		resolver: resolver,
		queue:    queue,
		audit:    audit,
		now:      time.Now,
	}
}

type contribution struct {
	info   model.SourceInfo
	record model.NormalizedRecord
}

// Merge groups the per-source record sets by BIN and collapses each group.
// Review-queue and audit-trail failures are collected as soft errors; they
// never abort the merge.
func (m *Merger) Merge(ctx context.Context, sources []SourceRecords) Result {
	groups := make(map[string][]contribution)
	result := Result{
		Stats: Stats{SourceBreakdown: make(map[string]int)},
	}

	for _, src := range sources {
		result.Stats.SourceBreakdown[src.Info.Name] += len(src.Records)
		result.Stats.TotalRecords += len(src.Records)
		for _, rec := range src.Records {
			groups[rec.BIN] = append(groups[rec.BIN], contribution{info: src.Info, record: rec})
		}
	}

	bins := make([]string, 0, len(groups))
	for bin := range groups {
		bins = append(bins, bin)
	}
	sort.Strings(bins)

	for _, bin := range bins {
		group := groups[bin]
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].info.Priority != group[j].info.Priority {
				return group[i].info.Priority < group[j].info.Priority
			}
			return group[i].record.Confidence > group[j].record.Confidence
		})

		merged, conflicts := m.mergeGroup(bin, group)
		result.Merged = append(result.Merged, merged)
		if len(group) > 1 {
			result.Stats.DuplicatesMerged += len(group) - 1
		}

		for _, conflict := range conflicts {
			result.Conflicts = append(result.Conflicts, conflict)
			result.Stats.ConflictsResolved++
			if conflict.RequiresManualReview {
				result.Stats.FlaggedForReview++
				if m.queue != nil {
					if err := m.queue.Enqueue(ctx, conflict); err != nil {
						result.Errors = append(result.Errors,
							fmt.Sprintf("review enqueue failed for %s.%s: %v", conflict.BIN, conflict.Field, err))
					}
				}
			}
		}
	}

	if m.audit != nil && len(result.Conflicts) > 0 {
		if err := m.audit.Record(ctx, result.Conflicts); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("audit record failed: %v", err))
		}
	}

	result.Stats.UniqueBINs = len(result.Merged)
	return result
}

// mergeGroup builds the canonical record for one BIN from contributions
// already sorted by priority then confidence.
func (m *Merger) mergeGroup(bin string, group []contribution) (model.MergedRecord, []model.Conflict) {
	primary := group[0]
	now := m.now().UTC()

	merged := model.MergedRecord{
		BIN:           bin,
		Length:        primary.record.Length,
		Luhn:          primary.record.Luhn,
		Source:        primary.info.Name,
		SourceVersion: primary.info.Version,
		ImportDate:    now,
		LastUpdated:   now,
		Raw:           model.Payload{},
	}

	sourceNames := make([]string, 0, len(group))
	for i, c := range group {
		snapshot := model.SourceSnapshot{
			Source:        c.info.Name,
			SourceVersion: c.info.Version,
			Confidence:    c.record.Confidence,
			Fields:        suppliedFields(c.record),
		}
		merged.Sources = append(merged.Sources, snapshot)
		sourceNames = append(sourceNames, c.info.Name)
		if len(c.record.Raw) > 0 {
			merged.Raw[fmt.Sprintf("_source_%d", i)] = map[string]any(c.record.Raw)
		}
		if c.record.Confidence > merged.Confidence {
			merged.Confidence = c.record.Confidence
		}
		if merged.Length == 0 && c.record.Length != 0 {
			merged.Length = c.record.Length
		}
		if merged.Luhn == nil && c.record.Luhn != nil {
			merged.Luhn = c.record.Luhn
		}
	}
	merged.Raw["_sources"] = sourceNames

	var conflicts []model.Conflict
	for _, field := range mergeableFields {
		value, conflict := m.resolveField(bin, field, group)
		setField(&merged, field, value)
		if conflict != nil {
			conflicts = append(conflicts, *conflict)
		}
	}

	return merged, conflicts
}

// resolveField collects the distinct non-empty values for one field across
// the group and resolves them. A resolver that comes back empty-handed on a
// non-empty candidate set is treated as a resolution failure: the primary
// candidate's value is used and a warning logged.
func (m *Merger) resolveField(bin, field string, group []contribution) (string, *model.Conflict) {
	var candidates []model.Candidate
	seen := make(map[string]bool)
	first := ""

	for _, c := range group {
		value := fieldValue(c.record, field)
		if value == "" {
			continue
		}
		if first == "" {
			first = value
		}
		candidates = append(candidates, model.Candidate{
			Source:     c.info.Name,
			Value:      value,
			Confidence: c.record.Confidence,
			Priority:   c.info.Priority,
			ObservedAt: m.now(),
		})
		seen[value] = true
	}

	switch {
	case len(candidates) == 0:
		return "", nil
	case len(seen) == 1:
		return first, nil
	}

	conflict := m.resolver.Resolve(bin, field, candidates)
	if conflict.ResolvedValue == "" {
		zap.L().Warn("conflict resolution failed, falling back to primary candidate",
			zap.String("component", "merge"),
			zap.String("bin", bin),
			zap.String("field", field))
		conflict.ResolvedValue = first
	}
	return conflict.ResolvedValue, &conflict
}

// fieldValue reads the canonical value a normalized record supplies for a
// mergeable field, preferring the normalized form where one exists.
func fieldValue(rec model.NormalizedRecord, field string) string {
	switch field {
	case "country_code":
		return rec.NormalizedCountryCode
	case "country":
		return rec.NormalizedCountry
	case "scheme":
		return rec.NormalizedScheme
	case "brand":
		return rec.NormalizedBrand
	case "type":
		return rec.NormalizedType
	case "issuer":
		return rec.NormalizedIssuer
	case "bank_code":
		return rec.BankCode
	case "branch_code":
		return rec.BranchCode
	case "url":
		return rec.URL
	case "phone":
		return rec.Phone
	case "city":
		return rec.City
	case "program_type":
		return rec.ProgramType
	case "regulatory_type":
		return rec.RegulatoryType
	}
	return ""
}

func setField(merged *model.MergedRecord, field, value string) {
	switch field {
	case "country_code":
		merged.CountryCode = value
	case "country":
		merged.Country = value
	case "scheme":
		merged.Scheme = value
	case "brand":
		merged.Brand = value
	case "type":
		merged.Type = value
	case "issuer":
		merged.Issuer = value
	case "bank_code":
		merged.BankCode = value
	case "branch_code":
		merged.BranchCode = value
	case "url":
		merged.URL = value
	case "phone":
		merged.Phone = value
	case "city":
		merged.City = value
	case "program_type":
		merged.ProgramType = value
	case "regulatory_type":
		merged.RegulatoryType = value
	}
}

// suppliedFields snapshots exactly the fields one source contributed.
func suppliedFields(rec model.NormalizedRecord) map[string]string {
	fields := make(map[string]string)
	for _, field := range mergeableFields {
		if value := fieldValue(rec, field); value != "" {
			fields[field] = value
		}
	}
	if rec.Length != 0 {
		fields["length"] = fmt.Sprintf("%d", rec.Length)
	}
	return fields
}

// Validate partitions merged records into loadable and rejected sets. A
// record must carry a valid BIN and a country code to be loadable.
func Validate(records []model.MergedRecord) (valid []model.MergedRecord, invalid []model.MergedRecord) {
	for _, rec := range records {
		if model.ValidBIN(rec.BIN) && rec.CountryCode != "" {
			valid = append(valid, rec)
			continue
		}
		invalid = append(invalid, rec)
	}
	return valid, invalid
}

// Package model defines the record types flowing through the BIN ETL pipeline.
package model

import (
	"regexp"
	"time"

	"github.com/google/uuid"
)

// binPattern matches a normalized BIN/IIN token: the leading 6-8 digits of a
// payment card number.
var binPattern = regexp.MustCompile(`^\d{6,8}$`)

// ValidBIN reports whether s is a normalized 6-8 digit BIN token.
func ValidBIN(s string) bool {
	return binPattern.MatchString(s)
}

// UnknownCountryCode is the sentinel country code assigned to records
// recovered from degraded sources so they still flow through the pipeline
// and can be corrected later by a higher-priority source or enrichment.
const UnknownCountryCode = "XX"

// SourceInfo identifies one configured reference dataset for a run.
// Priority is an ordinal trust ranking; lower wins by default.
type SourceInfo struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Format   string `json:"format"`
	Priority int    `json:"priority"`
}

// RawRecord is one extracted fact about a BIN, straight out of an extractor.
// Optional string fields are empty when the source did not supply them.
// Length is 0 until inferred; Luhn is nil when the source did not say.
type RawRecord struct {
	BIN            string  `json:"bin"`
	Length         int     `json:"length,omitempty"`
	Luhn           *bool   `json:"luhn,omitempty"`
	Scheme         string  `json:"scheme,omitempty"`
	Brand          string  `json:"brand,omitempty"`
	Type           string  `json:"type,omitempty"`
	Issuer         string  `json:"issuer,omitempty"`
	Country        string  `json:"country,omitempty"`
	CountryCode    string  `json:"country_code,omitempty"`
	BankCode       string  `json:"bank_code,omitempty"`
	BranchCode     string  `json:"branch_code,omitempty"`
	URL            string  `json:"url,omitempty"`
	Phone          string  `json:"phone,omitempty"`
	City           string  `json:"city,omitempty"`
	ProgramType    string  `json:"program_type,omitempty"`
	RegulatoryType string  `json:"regulatory_type,omitempty"`
	Raw            Payload `json:"raw"`
}

// NormalizedRecord is a RawRecord after field canonicalization, plus a
// 0-100 confidence score combining source trust and field completeness.
type NormalizedRecord struct {
	RawRecord

	NormalizedCountryCode string `json:"normalized_country_code"`
	NormalizedCountry     string `json:"normalized_country"`
	NormalizedIssuer      string `json:"normalized_issuer"`
	NormalizedScheme      string `json:"normalized_scheme"`
	NormalizedBrand       string `json:"normalized_brand"`
	NormalizedType        string `json:"normalized_type"`
	Confidence            int    `json:"confidence"`
}

// SourceSnapshot records one contributing source's view of a merged record:
// exactly the fields that source supplied, with its confidence at merge time.
type SourceSnapshot struct {
	Source        string            `json:"source"`
	SourceVersion string            `json:"source_version"`
	Confidence    int               `json:"confidence"`
	Fields        map[string]string `json:"fields"`
}

// MergedRecord is the canonical record for a BIN after cross-source merge.
// Source/SourceVersion identify the primary contributing source; Confidence
// is the maximum across contributors. The enricher may fill still-empty
// fields in place but never overwrites a populated one.
type MergedRecord struct {
	BIN            string `json:"bin"`
	Length         int    `json:"length,omitempty"`
	Luhn           *bool  `json:"luhn,omitempty"`
	Scheme         string `json:"scheme,omitempty"`
	Brand          string `json:"brand,omitempty"`
	Type           string `json:"type,omitempty"`
	Issuer         string `json:"issuer,omitempty"`
	Country        string `json:"country,omitempty"`
	CountryCode    string `json:"country_code,omitempty"`
	BankCode       string `json:"bank_code,omitempty"`
	BranchCode     string `json:"branch_code,omitempty"`
	URL            string `json:"url,omitempty"`
	Phone          string `json:"phone,omitempty"`
	City           string `json:"city,omitempty"`
	ProgramType    string `json:"program_type,omitempty"`
	RegulatoryType string `json:"regulatory_type,omitempty"`

	Source        string           `json:"source"`
	SourceVersion string           `json:"source_version"`
	Confidence    int              `json:"confidence"`
	Sources       []SourceSnapshot `json:"sources"`
	Raw           Payload          `json:"raw"`
	ImportDate    time.Time        `json:"import_date"`
	LastUpdated   time.Time        `json:"last_updated"`
}

// Candidate is one value competing for a field during conflict resolution.
type Candidate struct {
	Source     string    `json:"source"`
	Value      string    `json:"value"`
	Confidence int       `json:"confidence"`
	Priority   int       `json:"priority"`
	ObservedAt time.Time `json:"observed_at"`
}

// Conflict describes a cross-source disagreement on one field of one BIN.
// Conflicts are ephemeral: they are persisted only as review-queue and
// audit-trail entries, never on the MergedRecord itself.
type Conflict struct {
	BIN                  string      `json:"bin"`
	Field                string      `json:"field"`
	Candidates           []Candidate `json:"candidates"`
	ResolvedValue        string      `json:"resolved_value"`
	RequiresManualReview bool        `json:"requires_manual_review"`
}

// RunStatus is the lifecycle state of an ETL run.
type RunStatus string

// Run statuses. A run is terminal once it leaves StatusRunning.
const (
	StatusRunning    RunStatus = "running"
	StatusCompleted  RunStatus = "completed"
	StatusFailed     RunStatus = "failed"
	StatusRolledBack RunStatus = "rolled_back"
)

// Run is the bookkeeping row for one load invocation.
type Run struct {
	ID           uuid.UUID  `json:"id"`
	Source       string     `json:"source"`
	VersionHash  string     `json:"version_hash"`
	Status       RunStatus  `json:"status"`
	Processed    int        `json:"processed"`
	Inserted     int        `json:"inserted"`
	Updated      int        `json:"updated"`
	Failed       int        `json:"failed"`
	ErrorMessage string     `json:"error_message,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// Package extract turns raw reference-data files (CSV, XLSX, JSON, YAML, or
// directories of any mix) into a uniform slice of RawRecords.
//
// Only a top-level unreadable or unparsable input is a hard failure. Every
// row-level problem is recorded as a string in Result.Errors and the row is
// skipped, so one bad line never sinks a source.
package extract

import (
	"fmt"
	"strings"

	"github.com/bincheck/binetl/internal/model"
)

// Result is the outcome of extracting one source.
type Result struct {
	Source  model.SourceInfo
	Records []model.RawRecord
	Errors  []string
}

// ColumnMapping maps canonical field names to source-specific column headers
// for tabular sources. Keys are the canonical names used by RawRecord
// ("bin", "scheme", "type", "issuer", "country", "countryCode", ...).
type ColumnMapping map[string]string

// headerAliases are fallback header names tried when the caller-supplied
// mapping does not cover a canonical field. Matching is case-insensitive.
var headerAliases = map[string][]string{
	"bin":            {"bin", "iin", "iin_start", "bin_start"},
	"length":         {"length", "number_length"},
	"luhn":           {"luhn", "number_luhn"},
	"scheme":         {"scheme", "brand", "network", "card_network"},
	"brand":          {"brand", "card_brand", "product"},
	"type":           {"type", "card_type", "category"},
	"issuer":         {"issuer", "bank", "bank_name", "issuer_name"},
	"country":        {"country", "country_name", "countryname"},
	"countryCode":    {"country_code", "countrycode", "isocode2", "iso2", "alpha2"},
	"bankCode":       {"bank_code", "bankcode"},
	"branchCode":     {"branch_code", "branchcode"},
	"url":            {"url", "website", "issuer_url", "issuerurl", "bank_url"},
	"phone":          {"phone", "issuer_phone", "issuerphone", "bank_phone"},
	"city":           {"city", "bank_city"},
	"programType":    {"program_type", "programtype"},
	"regulatoryType": {"regulatory_type", "regulatorytype"},
}

// NormalizeBIN strips whitespace and hyphens, uppercases, and truncates the
// token to 8 characters. The result may still fail ValidBIN.
func NormalizeBIN(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '-' {
			continue
		}
		b.WriteRune(r)
	}
	out := strings.ToUpper(b.String())
	if len(out) > 8 {
		out = out[:8]
	}
	return out
}

// DetectLength infers the card number length from the scheme prefix when the
// source does not state it: Visa (4...) issues 13-digit pans in the legacy
// ranges, Mastercard 51-55 is 16, everything else defaults to 16.
func DetectLength(bin string) int {
	if bin == "" {
		return 16
	}
	if bin[0] == '4' {
		return 13
	}
	if len(bin) >= 2 {
		prefix := bin[:2]
		if prefix >= "51" && prefix <= "55" {
			return 16
		}
	}
	return 16
}

// boolPtr returns a pointer to b.
func boolPtr(b bool) *bool { return &b }

// invalidBINError formats the standard row-level error for a rejected key.
func invalidBINError(raw string) string {
	return fmt.Sprintf("invalid BIN format: %s", raw)
}

// finishRecord fills inferred defaults shared by all extractors: length from
// the scheme prefix when absent, luhn true when the source did not say.
func finishRecord(rec *model.RawRecord) {
	if rec.Length == 0 {
		rec.Length = DetectLength(rec.BIN)
	}
	if rec.Luhn == nil {
		rec.Luhn = boolPtr(true)
	}
}

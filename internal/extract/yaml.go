package extract

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/bincheck/binetl/internal/model"
)

// looseBinLine matches "BIN: value" lines during fallback recovery.
var looseBinLine = regexp.MustCompile(`^(\d{6,8})\s*:\s*(.+?)\s*$`)

// FromYAML extracts a hierarchical-markup source: a bin->object map or an
// array of bin-tagged objects. Some community datasets contain duplicate
// mapping keys, which yaml.v3 rejects outright; when the strict parse fails
// we recover a flat bin->issuer map with a conservative line scanner, last
// occurrence wins. Recovered records carry the unknown-country sentinel so
// they still flow through the pipeline and can be fixed by a higher-priority
// source or by enrichment.
func FromYAML(path string, src model.SourceInfo) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{Source: src}, eris.Wrapf(err, "extract: read yaml %s", path)
	}

	result := Result{Source: src}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		result.Errors = append(result.Errors,
			fmt.Sprintf("yaml parse error, attempting loose recovery: %v", err))
		recovered := scanLooseBinMap(string(data))
		if len(recovered) == 0 {
			return Result{Source: src}, eris.Wrapf(err, "extract: parse yaml %s", path)
		}
		for bin, issuer := range recovered {
			result.Records = append(result.Records, looseRecord(bin, issuer))
		}
		return result, nil
	}

	bins := map[string]model.Payload{}
	switch d := doc.(type) {
	case map[string]any:
		for k, v := range d {
			if obj, ok := v.(map[string]any); ok {
				bins[k] = model.Payload(obj)
			} else if v != nil {
				// Scalar value: treat as an issuer-only entry.
				bins[k] = model.Payload{"issuer": fmt.Sprintf("%v", v)}
			}
		}
	case []any:
		for _, item := range d {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			p := model.Payload(obj)
			if bin := p.First("bin", "iin"); bin != "" {
				bins[bin] = p
			}
		}
	}

	for binKey, p := range bins {
		bin := NormalizeBIN(binKey)
		if !model.ValidBIN(bin) {
			result.Errors = append(result.Errors, invalidBINError(binKey))
			continue
		}

		issuerObj := p.Sub("issuer")

		rec := model.RawRecord{
			BIN:         bin,
			Length:      p.Int("length"),
			Scheme:      strings.ToLower(p.First("scheme", "type")),
			Brand:       p.First("brand"),
			Type:        strings.ToLower(p.First("cardType", "card_type", "type")),
			Issuer:      firstOf(issuerObj.First("name"), p.First("issuer", "bank")),
			Country:     firstOf(issuerObj.First("country"), p.First("country")),
			CountryCode: upperIfISO2(firstOf(issuerObj.First("countryCode"), p.First("countryCode", "country_code"))),
			Raw:         p,
		}
		if luhn, ok := p.Bool("luhn"); ok {
			rec.Luhn = boolPtr(luhn)
		}

		finishRecord(&rec)
		result.Records = append(result.Records, rec)
	}

	return result, nil
}

// scanLooseBinMap extracts "bin: value" lines from YAML-like text. It is
// deliberately not a YAML parser; it only rescues flat bin maps from
// documents the strict parser rejects. Last occurrence of a bin wins.
func scanLooseBinMap(content string) map[string]string {
	out := map[string]string{}
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		m := looseBinLine.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		value := m[2]
		if i := strings.Index(value, " #"); i >= 0 {
			value = strings.TrimSpace(value[:i])
		}
		value = unquote(value)
		if value == "" {
			continue
		}
		out[m[1]] = value
	}
	return out
}

// looseRecord builds the degraded record shape for scanner recoveries.
func looseRecord(bin, issuer string) model.RawRecord {
	rec := model.RawRecord{
		BIN:         bin,
		Issuer:      issuer,
		Country:     "Unknown",
		CountryCode: model.UnknownCountryCode,
		Raw:         model.Payload{"issuer": issuer},
	}
	finishRecord(&rec)
	return rec
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

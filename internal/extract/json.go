package extract

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/bincheck/binetl/internal/model"
)

// FromJSON extracts a structured-document source: either a bin->object map
// or an array of bin-tagged objects. Nested bank/country sub-objects are
// flattened into the RawRecord through the Payload accessors, so no fixed
// upstream shape is assumed.
func FromJSON(path string, src model.SourceInfo) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{Source: src}, eris.Wrapf(err, "extract: read json %s", path)
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return Result{Source: src}, eris.Wrapf(err, "extract: parse json %s", path)
	}

	result := Result{Source: src}

	switch d := doc.(type) {
	case map[string]any:
		for bin, v := range d {
			obj, ok := v.(map[string]any)
			if !ok {
				result.Errors = append(result.Errors, invalidBINError(bin))
				continue
			}
			appendObjectRecord(&result, bin, model.Payload(obj))
		}
	case []any:
		for _, v := range d {
			obj, ok := v.(map[string]any)
			if !ok {
				continue
			}
			p := model.Payload(obj)
			appendObjectRecord(&result, p.First("bin", "iin", "binNumber", "bin_code"), p)
		}
	default:
		return Result{Source: src}, eris.Errorf("extract: json %s: expected object or array", path)
	}

	return result, nil
}

// appendObjectRecord converts one bin-keyed payload into a RawRecord,
// recording a row-level error when the key is not a valid BIN.
func appendObjectRecord(result *Result, binKey string, p model.Payload) {
	bin := NormalizeBIN(binKey)
	if !model.ValidBIN(bin) {
		result.Errors = append(result.Errors, invalidBINError(binKey))
		return
	}

	bank := p.Sub("bank")
	country := p.Sub("country")

	rec := model.RawRecord{
		BIN:         bin,
		Length:      p.Int("length", "number_length"),
		Scheme:      strings.ToLower(p.First("scheme", "network", "cardNetwork")),
		Brand:       p.First("brand", "cardBrand", "product"),
		Type:        strings.ToLower(p.First("type", "cardType", "card_type")),
		Issuer:      firstOf(bank.First("name", "bank_name", "issuer"), p.First("issuer", "issuerName", "bankName", "bank_name")),
		Country:     firstOf(country.First("name"), p.First("countryName", "country_name")),
		CountryCode: upperIfISO2(firstOf(country.First("alpha2", "code", "iso2"), p.First("countryCode", "country_code", "iso2"))),
		BankCode:    firstOf(bank.First("code"), p.First("bankCode", "bank_code")),
		BranchCode:  p.First("branchCode", "branch_code"),
		URL:         firstOf(bank.First("url", "website"), p.First("url", "website")),
		Phone:       firstOf(bank.First("phone"), p.First("phone")),
		City:        firstOf(bank.First("city"), p.First("city")),
		Raw:         p,
	}

	if luhn, ok := p.Bool("luhn", "number_luhn"); ok {
		rec.Luhn = boolPtr(luhn)
	}

	finishRecord(&rec)
	result.Records = append(result.Records, rec)
}

// firstOf returns the first non-empty string.
func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// upperIfISO2 uppercases two-letter codes and passes longer values through.
func upperIfISO2(s string) string {
	if len(s) == 2 {
		return strings.ToUpper(s)
	}
	return s
}

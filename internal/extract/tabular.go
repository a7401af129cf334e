package extract

import (
	"encoding/csv"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/bincheck/binetl/internal/model"
)

// cp1252Replacer maps the Windows-1252 punctuation bytes that show up in a
// few community CSV dumps onto their ASCII equivalents.
var cp1252Replacer = strings.NewReplacer(
	"\x92", "'",
	"\x93", `"`,
	"\x94", `"`,
	"\x96", "-",
	"\x97", "-",
)

// FromCSV extracts a tabular CSV (or .txt) source. The caller supplies a
// header mapping per source; unmapped canonical fields fall back to common
// header aliases. Rows without a bin value are silently skipped.
func FromCSV(path string, src model.SourceInfo, mapping ColumnMapping) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{Source: src}, eris.Wrapf(err, "extract: read csv %s", path)
	}

	reader := csv.NewReader(strings.NewReader(cp1252Replacer.Replace(string(data))))
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return Result{Source: src}, eris.Wrapf(err, "extract: parse csv %s", path)
	}
	if len(rows) == 0 {
		return Result{Source: src}, nil
	}

	return fromTabular(rows[0], rows[1:], src, mapping), nil
}

// FromXLSX extracts a tabular XLSX source with the same mapping semantics as
// FromCSV, reading the first sheet with the first row as header.
func FromXLSX(path string, src model.SourceInfo, mapping ColumnMapping) (Result, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return Result{Source: src}, eris.Wrapf(err, "extract: open xlsx %s", path)
	}
	if len(f.Sheets) == 0 {
		return Result{Source: src}, eris.Errorf("extract: xlsx %s has no sheets", path)
	}

	var rows [][]string
	for _, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for i, c := range row.Cells {
			cells[i] = strings.TrimSpace(c.Value)
		}
		rows = append(rows, cells)
	}
	if len(rows) == 0 {
		return Result{Source: src}, nil
	}

	return fromTabular(rows[0], rows[1:], src, mapping), nil
}

// fromTabular converts header+rows into RawRecords using the caller mapping
// and the shared alias fallbacks.
func fromTabular(header []string, rows [][]string, src model.SourceInfo, mapping ColumnMapping) Result {
	result := Result{Source: src}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}

	lookup := func(row []string, canonical string) string {
		if mapped, ok := mapping[canonical]; ok {
			if i, ok := idx[strings.ToLower(mapped)]; ok && i < len(row) {
				if v := strings.TrimSpace(row[i]); v != "" {
					return v
				}
			}
		}
		for _, alias := range headerAliases[canonical] {
			if i, ok := idx[alias]; ok && i < len(row) {
				if v := strings.TrimSpace(row[i]); v != "" {
					return v
				}
			}
		}
		return ""
	}

	for _, row := range rows {
		binValue := lookup(row, "bin")
		if binValue == "" {
			continue
		}

		bin := NormalizeBIN(binValue)
		if !model.ValidBIN(bin) {
			result.Errors = append(result.Errors, invalidBINError(binValue))
			continue
		}

		raw := model.Payload{}
		for i, h := range header {
			if i < len(row) && row[i] != "" {
				raw[h] = row[i]
			}
		}

		rec := model.RawRecord{
			BIN:            bin,
			Scheme:         lookup(row, "scheme"),
			Brand:          lookup(row, "brand"),
			Type:           lookup(row, "type"),
			Issuer:         lookup(row, "issuer"),
			Country:        lookup(row, "country"),
			CountryCode:    lookup(row, "countryCode"),
			BankCode:       lookup(row, "bankCode"),
			BranchCode:     lookup(row, "branchCode"),
			URL:            lookup(row, "url"),
			Phone:          lookup(row, "phone"),
			City:           lookup(row, "city"),
			ProgramType:    lookup(row, "programType"),
			RegulatoryType: lookup(row, "regulatoryType"),
			Raw:            raw,
		}

		if s := lookup(row, "length"); s != "" {
			if n, err := strconv.Atoi(s); err == nil {
				rec.Length = n
			}
		}
		if s := lookup(row, "luhn"); s != "" {
			rec.Luhn = boolPtr(strings.EqualFold(s, "true"))
		}

		finishRecord(&rec)
		result.Records = append(result.Records, rec)
	}

	return result
}

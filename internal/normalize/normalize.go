// Package normalize canonicalizes extracted BIN records: country codes,
// issuer names, scheme/brand/type aliases, and a 0-100 confidence score.
package normalize

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/bincheck/binetl/internal/model"
)

var (
	dashVariants  = strings.NewReplacer("‐", "-", "‑", "-", "–", "-", "—", "-")
	quoteVariants = strings.NewReplacer("‘", "'", "’", "'", "“", "'", "”", "'")
	issuerSymbols = regexp.MustCompile("[.,;:#*@!$%^&(){}\\[\\]|\\\\<>~`]")
	multiSpace    = regexp.MustCompile(`\s+`)
	legalSuffix   = regexp.MustCompile(`(?i)\s+(LLC|INC|LTD|CORP|PLC|SAG|AG|SA)$`)
	titleCaser    = cases.Title(language.English)
)

var schemeAliases = map[string]string{
	"visa":             "visa",
	"visa electron":    "visa",
	"visa-dankort":     "visa",
	"mastercard":       "mastercard",
	"master":           "mastercard",
	"mc":               "mastercard",
	"amex":             "amex",
	"american express": "amex",
	"americanexpress":  "amex",
	"jcb":              "jcb",
	"unionpay":         "unionpay",
	"up":               "unionpay",
	"discover":         "discover",
	"diners":           "diners",
	"diners club":      "diners",
	"interac":          "interac",
	"elo":              "elo",
	"hipercard":        "hipercard",
	"carte bleue":      "carte-bleue",
}

var typeAliases = map[string]string{
	"debit":          "debit",
	"credit":         "credit",
	"prepaid":        "prepaid",
	"pre-paid":       "prepaid",
	"reloadable":     "prepaid",
	"non-reloadable": "prepaid",
	"corporate":      "corporate",
	"business":       "corporate",
	"commercial":     "corporate",
	"consumer":       "consumer",
}

// priorityScore is the trust component of confidence, by priority tier.
func priorityScore(priority int) int {
	switch priority {
	case 1:
		return 30
	case 2:
		return 25
	case 3:
		return 20
	default:
		return 10
	}
}

// Record normalizes a single extracted record. Pure; never fails.
func Record(rec model.RawRecord, priority int) model.NormalizedRecord {
	n := model.NormalizedRecord{RawRecord: rec}

	if rec.CountryCode != "" {
		code := strings.ToUpper(strings.TrimSpace(rec.CountryCode))
		if ValidISO2(code) {
			n.NormalizedCountryCode = code
		}
	}
	if n.NormalizedCountryCode == "" && rec.Country != "" {
		n.NormalizedCountryCode = CountryToISO2(rec.Country)
	}
	if rec.Country != "" {
		n.NormalizedCountry = strings.TrimSpace(rec.Country)
	}

	if rec.Issuer != "" {
		n.NormalizedIssuer = Issuer(rec.Issuer)
	}
	n.NormalizedScheme = Scheme(rec.Scheme)
	n.NormalizedBrand = Brand(rec.Brand, n.NormalizedScheme)
	n.NormalizedType = CardType(rec.Type)

	n.Confidence = confidence(&n, priority)
	return n
}

// BatchResult is the outcome of normalizing one source's records.
type BatchResult struct {
	Records         []model.NormalizedRecord
	CountryMappings map[string]string
	IssuerMappings  map[string]string
	Errors          []string
}

// Batch normalizes a slice of records, collecting per-record problems
// instead of failing. It also accumulates the observed country and issuer
// mappings for the run report.
func Batch(records []model.RawRecord, priority int) BatchResult {
	result := BatchResult{
		CountryMappings: map[string]string{},
		IssuerMappings:  map[string]string{},
	}

	for _, rec := range records {
		if !model.ValidBIN(rec.BIN) {
			result.Errors = append(result.Errors, fmt.Sprintf("invalid BIN format: %s", rec.BIN))
			continue
		}

		n := Record(rec, priority)
		result.Records = append(result.Records, n)

		if rec.Country != "" {
			key := strings.ToLower(strings.TrimSpace(rec.Country))
			if _, seen := result.CountryMappings[key]; !seen {
				result.CountryMappings[key] = n.NormalizedCountryCode
			}
		}
		if rec.Issuer != "" {
			key := strings.ToLower(strings.TrimSpace(rec.Issuer))
			if _, seen := result.IssuerMappings[key]; !seen {
				result.IssuerMappings[key] = n.NormalizedIssuer
			}
		}
	}

	return result
}

// InvalidRecord pairs a rejected record with the reasons it was rejected.
type InvalidRecord struct {
	Record model.NormalizedRecord
	Reason string
}

// Validate partitions normalized records into valid and invalid. A record is
// valid iff its bin is a 6-8 digit token and a country code was resolved.
func Validate(records []model.NormalizedRecord) (valid []model.NormalizedRecord, invalid []InvalidRecord) {
	for _, rec := range records {
		var reasons []string
		if !model.ValidBIN(rec.BIN) {
			reasons = append(reasons, "invalid BIN format")
		}
		if rec.NormalizedCountryCode == "" {
			reasons = append(reasons, "missing country code")
		}
		if len(reasons) > 0 {
			invalid = append(invalid, InvalidRecord{Record: rec, Reason: strings.Join(reasons, "; ")})
			continue
		}
		valid = append(valid, rec)
	}
	return valid, invalid
}

// Issuer canonicalizes an issuer name: case-folded to upper, dash and quote
// variants unified, symbol blocklist stripped, whitespace collapsed, common
// legal-entity suffixes kept but space-separated.
func Issuer(issuer string) string {
	s := strings.TrimSpace(issuer)
	if s == "" {
		return ""
	}
	s = strings.ToUpper(s)
	s = dashVariants.Replace(s)
	s = quoteVariants.Replace(s)
	s = multiSpace.ReplaceAllString(s, " ")
	s = issuerSymbols.ReplaceAllString(s, "")
	s = legalSuffix.ReplaceAllString(s, " $1")
	return strings.TrimSpace(s)
}

// Scheme maps a card network name through the alias table. Unmapped values
// pass through lower-cased.
func Scheme(scheme string) string {
	s := strings.ToLower(strings.TrimSpace(scheme))
	if s == "" {
		return ""
	}
	if mapped, ok := schemeAliases[s]; ok {
		return mapped
	}
	return s
}

// CardType maps a card type through the alias table. Unmapped values pass
// through lower-cased.
func CardType(typ string) string {
	s := strings.ToLower(strings.TrimSpace(typ))
	if s == "" {
		return ""
	}
	if mapped, ok := typeAliases[s]; ok {
		return mapped
	}
	return s
}

// Brand title-cases the brand text, strips a duplicated scheme token, and
// falls back to the scheme name when nothing is left.
func Brand(brand, scheme string) string {
	s := strings.TrimSpace(brand)
	if s == "" {
		return ""
	}
	s = titleCaser.String(multiSpace.ReplaceAllString(s, " "))

	if scheme != "" && strings.Contains(strings.ToLower(s), strings.ToLower(scheme)) {
		re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(scheme))
		if err == nil {
			s = strings.TrimSpace(re.ReplaceAllString(s, ""))
		}
	}

	s = multiSpace.ReplaceAllString(s, " ")
	s = strings.TrimSpace(strings.Trim(s, "-–—"))
	if s == "" {
		return scheme
	}
	return s
}

// confidence scores a record from its source tier and field completeness.
// The trust component maxes at 30, completeness at 50; the sum is scaled to
// 0-100.
func confidence(n *model.NormalizedRecord, priority int) int {
	score := priorityScore(priority)

	if n.BIN != "" {
		score += 5
	}
	if n.NormalizedScheme != "" {
		score += 10
	}
	if n.NormalizedBrand != "" {
		score += 5
	}
	if n.NormalizedType != "" {
		score += 5
	}
	if n.NormalizedCountryCode != "" {
		score += 10
	}
	if n.NormalizedCountry != "" {
		score += 5
	}
	if n.NormalizedIssuer != "" {
		score += 10
	}

	return int(math.Round(float64(score) / 80 * 100))
}

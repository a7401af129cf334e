package normalize

import (
	"regexp"
	"strings"
)

var iso2Pattern = regexp.MustCompile(`^[A-Z]{2}$`)

// countryAliases maps lowercased country names, ISO3 codes, and common
// variants to ISO2. ISO2 inputs are accepted directly by CountryToISO2 and
// are not listed here except where they double as a name.
var countryAliases = map[string]string{
	"united states": "US", "united states of america": "US", "usa": "US", "america": "US",
	"united kingdom": "GB", "great britain": "GB", "uk": "GB", "gbr": "GB", "england": "GB",
	"germany": "DE", "deu": "DE", "deutschland": "DE",
	"france": "FR", "fra": "FR",
	"spain": "ES", "esp": "ES",
	"italy": "IT", "ita": "IT",
	"netherlands": "NL", "nld": "NL", "holland": "NL", "the netherlands": "NL",
	"belgium": "BE", "bel": "BE",
	"switzerland": "CH", "che": "CH",
	"austria": "AT", "aut": "AT",
	"portugal": "PT", "prt": "PT",
	"ireland": "IE", "irl": "IE",
	"denmark": "DK", "dnk": "DK",
	"sweden": "SE", "swe": "SE",
	"norway": "NO", "nor": "NO",
	"finland": "FI", "fin": "FI",
	"iceland": "IS", "isl": "IS",
	"poland": "PL", "pol": "PL",
	"czech republic": "CZ", "czechia": "CZ", "cze": "CZ",
	"slovakia": "SK", "svk": "SK",
	"hungary": "HU", "hun": "HU",
	"romania": "RO", "rou": "RO",
	"bulgaria": "BG", "bgr": "BG",
	"greece": "GR", "grc": "GR",
	"croatia": "HR", "hrv": "HR",
	"slovenia": "SI", "svn": "SI",
	"serbia": "RS", "srb": "RS",
	"ukraine": "UA", "ukr": "UA",
	"russia": "RU", "russian federation": "RU", "rus": "RU",
	"turkey": "TR", "turkiye": "TR", "tur": "TR",
	"estonia": "EE", "est": "EE",
	"latvia": "LV", "lva": "LV",
	"lithuania": "LT", "ltu": "LT",
	"luxembourg": "LU", "lux": "LU",
	"malta": "MT", "mlt": "MT",
	"cyprus": "CY", "cyp": "CY",
	"canada": "CA", "can": "CA",
	"mexico": "MX", "mex": "MX",
	"brazil": "BR", "brasil": "BR", "bra": "BR",
	"argentina": "AR", "arg": "AR",
	"chile": "CL", "chl": "CL",
	"colombia": "CO", "col": "CO",
	"peru": "PE", "per": "PE",
	"venezuela": "VE", "ven": "VE",
	"ecuador": "EC", "ecu": "EC",
	"uruguay": "UY", "ury": "UY",
	"paraguay": "PY", "pry": "PY",
	"bolivia": "BO", "bol": "BO",
	"panama": "PA", "pan": "PA",
	"costa rica": "CR", "cri": "CR",
	"guatemala": "GT", "gtm": "GT",
	"honduras": "HN", "hnd": "HN",
	"el salvador": "SV", "slv": "SV",
	"nicaragua": "NI", "nic": "NI",
	"dominican republic": "DO", "dom": "DO",
	"jamaica": "JM", "jam": "JM",
	"cuba": "CU", "cub": "CU",
	"china": "CN", "chn": "CN", "people's republic of china": "CN",
	"japan": "JP", "jpn": "JP",
	"south korea": "KR", "korea": "KR", "republic of korea": "KR", "kor": "KR",
	"india": "IN", "ind": "IN",
	"indonesia": "ID", "idn": "ID",
	"thailand": "TH", "tha": "TH",
	"vietnam": "VN", "viet nam": "VN", "vnm": "VN",
	"philippines": "PH", "phl": "PH",
	"malaysia": "MY", "mys": "MY",
	"singapore": "SG", "sgp": "SG",
	"hong kong": "HK", "hkg": "HK",
	"taiwan": "TW", "twn": "TW",
	"macau": "MO", "macao": "MO", "mac": "MO",
	"pakistan": "PK", "pak": "PK",
	"bangladesh": "BD", "bgd": "BD",
	"sri lanka": "LK", "lka": "LK",
	"nepal": "NP", "npl": "NP",
	"australia": "AU", "aus": "AU",
	"new zealand": "NZ", "nzl": "NZ",
	"israel": "IL", "isr": "IL",
	"saudi arabia": "SA", "sau": "SA",
	"united arab emirates": "AE", "uae": "AE", "are": "AE",
	"qatar": "QA", "qat": "QA",
	"kuwait": "KW", "kwt": "KW",
	"bahrain": "BH", "bhr": "BH",
	"oman": "OM", "omn": "OM",
	"jordan": "JO", "jor": "JO",
	"lebanon": "LB", "lbn": "LB",
	"egypt": "EG", "egy": "EG",
	"morocco": "MA", "mar": "MA",
	"tunisia": "TN", "tun": "TN",
	"algeria": "DZ", "dza": "DZ",
	"south africa": "ZA", "zaf": "ZA",
	"nigeria": "NG", "nga": "NG",
	"kenya": "KE", "ken": "KE",
	"ghana": "GH", "gha": "GH",
	"ethiopia": "ET", "eth": "ET",
	"tanzania": "TZ", "tza": "TZ",
	"uganda": "UG", "uga": "UG",
	"kazakhstan": "KZ", "kaz": "KZ",
	"uzbekistan": "UZ", "uzb": "UZ",
	"azerbaijan": "AZ", "aze": "AZ",
	"georgia": "GE", "geo": "GE",
	"armenia": "AM", "arm": "AM",
	"belarus": "BY", "blr": "BY",
	"moldova": "MD", "mda": "MD",
	"iran": "IR", "irn": "IR",
	"iraq": "IQ", "irq": "IQ",
}

// CountryToISO2 resolves a free-text country name, ISO3 code, or ISO2 code
// to ISO2. Returns "" when the value cannot be resolved.
func CountryToISO2(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return ""
	}
	// Alias table first: two-letter inputs like "uk" resolve to their real
	// ISO2 before the pattern fallback can pass them through verbatim.
	if iso2, ok := countryAliases[strings.ToLower(trimmed)]; ok {
		return iso2
	}
	upper := strings.ToUpper(trimmed)
	if iso2Pattern.MatchString(upper) {
		return upper
	}
	return ""
}

// ValidISO2 reports whether s is a well-formed two-letter country code.
func ValidISO2(s string) bool {
	return iso2Pattern.MatchString(s)
}

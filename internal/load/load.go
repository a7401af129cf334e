package load

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bincheck/binetl/internal/db"
	"github.com/bincheck/binetl/internal/model"
)

// Options controls one load pass.
type Options struct {
	BatchSize      int
	DryRun         bool
	SkipValidation bool
}

// Counts tallies record outcomes for one load pass.
type Counts struct {
	Processed int `json:"processed"`
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Failed    int `json:"failed"`
}

// Result is the outcome of a load pass. Errors holds per-record failures;
// the pass keeps going past them.
type Result struct {
	Counts
	VersionHash string   `json:"version_hash"`
	DryRun      bool     `json:"dry_run"`
	Errors      []string `json:"errors,omitempty"`
}

const defaultBatchSize = 100

// consecutiveFailureLimit is how many upserts may fail back to back before
// the store is treated as down and the pass aborts.
const consecutiveFailureLimit = 10

// upsertSQL merges one record into bin_data.bins. Data columns take the
// incoming value when present and keep the existing one otherwise; source,
// provenance and version columns always move to the incoming run, and any
// row a run touches is re-activated since lookups only serve active rows.
// (xmax = 0) distinguishes a fresh insert from a conflict update.
const upsertSQL = `
	INSERT INTO bin_data.bins (
		bin, length, luhn, scheme, brand, type, issuer,
		country, country_code, bank_code, branch_code,
		url, phone, city, program_type, regulatory_type,
		source, source_version, confidence, sources, raw, version_hash,
		is_active, import_date, last_updated
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
		$13, $14, $15, $16, $17, $18, $19, $20, $21, $22, TRUE, now(), now()
	)
	ON CONFLICT (bin) DO UPDATE SET
		length          = COALESCE(EXCLUDED.length, bins.length),
		luhn            = COALESCE(EXCLUDED.luhn, bins.luhn),
		scheme          = COALESCE(EXCLUDED.scheme, bins.scheme),
		brand           = COALESCE(EXCLUDED.brand, bins.brand),
		type            = COALESCE(EXCLUDED.type, bins.type),
		issuer          = COALESCE(EXCLUDED.issuer, bins.issuer),
		country         = COALESCE(EXCLUDED.country, bins.country),
		country_code    = COALESCE(EXCLUDED.country_code, bins.country_code),
		bank_code       = COALESCE(EXCLUDED.bank_code, bins.bank_code),
		branch_code     = COALESCE(EXCLUDED.branch_code, bins.branch_code),
		url             = COALESCE(EXCLUDED.url, bins.url),
		phone           = COALESCE(EXCLUDED.phone, bins.phone),
		city            = COALESCE(EXCLUDED.city, bins.city),
		program_type    = COALESCE(EXCLUDED.program_type, bins.program_type),
		regulatory_type = COALESCE(EXCLUDED.regulatory_type, bins.regulatory_type),
		confidence      = COALESCE(EXCLUDED.confidence, bins.confidence),
		source          = EXCLUDED.source,
		source_version  = EXCLUDED.source_version,
		sources         = EXCLUDED.sources,
		raw             = EXCLUDED.raw,
		version_hash    = EXCLUDED.version_hash,
		is_active       = TRUE,
		last_updated    = now()
	RETURNING (xmax = 0) AS inserted
`

// Loader writes merged records into bin_data.bins.
type Loader struct {
	pool db.Pool
}

func New(pool db.Pool) *Loader {
	return &Loader{pool: pool}
}

// Load upserts records in batches and reports counts. Records failing
// validation are counted as failed and skipped; the pass keeps going past
// per-record errors but aborts with an error once the store itself looks
// unreachable. In dry-run mode records are validated and counted but no
// statement is issued.
func (l *Loader) Load(ctx context.Context, records []model.MergedRecord, versionHash string, opts Options) (Result, error) {
	log := zap.L().With(zap.String("component", "load"))

	result := Result{VersionHash: versionHash, DryRun: opts.DryRun}
	if len(records) == 0 {
		return result, nil
	}
	consecutive := 0

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}

		for _, rec := range records[start:end] {
			result.Processed++

			if !opts.SkipValidation && !Validatable(rec) {
				result.Failed++
				result.Errors = append(result.Errors, fmt.Sprintf("invalid record: %s", rec.BIN))
				continue
			}

			if opts.DryRun {
				result.Inserted++
				continue
			}

			inserted, err := l.upsert(ctx, rec, versionHash)
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, fmt.Sprintf("failed to load %s: %v", rec.BIN, err))
				consecutive++
				if storeUnreachable(ctx, err) || consecutive >= consecutiveFailureLimit {
					return result, eris.Wrapf(err, "load: store unreachable after %d records", result.Processed)
				}
				continue
			}
			consecutive = 0
			if inserted {
				result.Inserted++
			} else {
				result.Updated++
			}
		}

		log.Info("load progress",
			zap.Int("processed", result.Processed),
			zap.Int("total", len(records)))
	}

	return result, nil
}

func (l *Loader) upsert(ctx context.Context, rec model.MergedRecord, versionHash string) (bool, error) {
	sourcesJSON, err := json.Marshal(rec.Sources)
	if err != nil {
		return false, eris.Wrap(err, "load: marshal sources")
	}
	rawJSON, err := json.Marshal(rec.Raw)
	if err != nil {
		return false, eris.Wrap(err, "load: marshal raw payload")
	}

	var length any
	if rec.Length != 0 {
		length = rec.Length
	}

	var inserted bool
	err = l.pool.QueryRow(ctx, upsertSQL,
		rec.BIN,
		length,
		rec.Luhn,
		db.NullIfEmpty(rec.Scheme),
		db.NullIfEmpty(rec.Brand),
		db.NullIfEmpty(rec.Type),
		db.NullIfEmpty(rec.Issuer),
		db.NullIfEmpty(rec.Country),
		db.NullIfEmpty(rec.CountryCode),
		db.NullIfEmpty(rec.BankCode),
		db.NullIfEmpty(rec.BranchCode),
		db.NullIfEmpty(rec.URL),
		db.NullIfEmpty(rec.Phone),
		db.NullIfEmpty(rec.City),
		db.NullIfEmpty(rec.ProgramType),
		db.NullIfEmpty(rec.RegulatoryType),
		rec.Source,
		db.NullIfEmpty(rec.SourceVersion),
		NormalizeConfidence(rec.Confidence),
		sourcesJSON,
		rawJSON,
		versionHash,
	).Scan(&inserted)
	if err != nil {
		return false, eris.Wrapf(err, "load: upsert %s", rec.BIN)
	}
	return inserted, nil
}

// storeUnreachable reports whether an upsert error points at the store
// rather than the record. pgconn marks errors raised before any data reached
// the server as safe to retry, which only happens when the connection itself
// failed.
func storeUnreachable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return pgconn.SafeToRetry(err)
}

var countryCodePattern = regexp.MustCompile(`^[A-Z]{2}$`)

// Validatable reports whether a merged record may enter bin_data.bins:
// a normalized BIN, a two-letter country code, and when the card length is
// known it must be a plausible PAN length.
func Validatable(rec model.MergedRecord) bool {
	if !model.ValidBIN(rec.BIN) {
		return false
	}
	if !countryCodePattern.MatchString(rec.CountryCode) {
		return false
	}
	if rec.Length != 0 && (rec.Length < 13 || rec.Length > 19) {
		return false
	}
	return true
}

// NormalizeConfidence maps the 0-100 integer confidence onto the 0.00-1.00
// scale stored in the database.
func NormalizeConfidence(confidence int) float64 {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 100 {
		confidence = 100
	}
	return float64(confidence) / 100
}

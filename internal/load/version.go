// Package load persists merged BIN records into Postgres with fill-only
// upserts, content-addressed version hashing, and rollback by run.
package load

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/bincheck/binetl/internal/model"
)

// VersionHash computes the content address for a batch of merged records.
// It hashes one line per record, sorted by BIN, so the hash is stable across
// source ordering and map iteration. Two batches with the same hash carry
// identical content as far as provenance is concerned.
func VersionHash(records []model.MergedRecord) string {
	lines := make([]string, 0, len(records))
	for _, rec := range records {
		lines = append(lines, fmt.Sprintf("%s|%s|%s|%d", rec.BIN, rec.Source, rec.SourceVersion, rec.Confidence))
	}
	sort.Strings(lines)

	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}

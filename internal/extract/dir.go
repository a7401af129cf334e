package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/bincheck/binetl/internal/model"
)

// FromDirectory extracts every recognized file in a directory, dispatching by
// extension (case-insensitive). Nested directories and unrecognized
// extensions are skipped. Sub-results are concatenated; a failure in one file
// is recorded as an error string and the remaining files still run.
func FromDirectory(path string, src model.SourceInfo, mapping ColumnMapping) (Result, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return Result{Source: src}, eris.Wrapf(err, "extract: read directory %s", path)
	}

	result := Result{Source: src}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		filePath := filepath.Join(path, entry.Name())
		var sub Result
		var subErr error

		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".csv", ".txt":
			sub, subErr = FromCSV(filePath, src, mapping)
		case ".xlsx":
			sub, subErr = FromXLSX(filePath, src, mapping)
		case ".json":
			sub, subErr = FromJSON(filePath, src)
		case ".yaml", ".yml":
			sub, subErr = FromYAML(filePath, src)
		default:
			continue
		}

		if subErr != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("error processing %s: %v", entry.Name(), subErr))
			continue
		}

		result.Records = append(result.Records, sub.Records...)
		result.Errors = append(result.Errors, sub.Errors...)
	}

	return result, nil
}

package etl

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bincheck/binetl/internal/extract"
	"github.com/bincheck/binetl/internal/load"
	"github.com/bincheck/binetl/internal/merge"
	"github.com/bincheck/binetl/internal/model"
)

func writeSource(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func dryRunPipeline() *Pipeline {
	review := merge.NewMemoryReview()
	merger := merge.New(merge.NewResolver(merge.DefaultMargin), review, review)
	return NewPipeline(nil, load.New(nil), merger, nil)
}

func TestPipelineDryRun(t *testing.T) {
	csvPath := writeSource(t, "high.csv",
		"bin,scheme,issuer,country_code\n411111,visa,Chase,US\n521234,mastercard,Barclays,GB\n")
	yamlPath := writeSource(t, "low.yml",
		"\"411111\":\n  issuer: JPMorgan Chase\n  countryCode: US\n")

	sources := []SourceSpec{
		{
			Info: model.SourceInfo{Name: "high", Version: "v1", Format: "csv", Priority: 1},
			Path: csvPath,
		},
		{
			Info: model.SourceInfo{Name: "low", Version: "v1", Format: "yaml", Priority: 3},
			Path: yamlPath,
		},
	}

	report, err := dryRunPipeline().Run(context.Background(), sources, Options{DryRun: true})
	require.NoError(t, err)

	require.Len(t, report.Sources, 2)
	assert.Equal(t, 2, report.Merge.UniqueBINs)
	assert.Equal(t, 1, report.Merge.DuplicatesMerged)

	// Dry run counts all valid records as inserted and creates no run row.
	assert.Equal(t, uuid0, report.RunID.String())
	assert.Equal(t, 2, report.Load.Processed)
	assert.Equal(t, 2, report.Load.Inserted)
	assert.True(t, report.Load.DryRun)
	assert.NotEmpty(t, report.Load.VersionHash)
}

const uuid0 = "00000000-0000-0000-0000-000000000000"

func TestPipelineSourceFilter(t *testing.T) {
	csvPath := writeSource(t, "only.csv", "bin,issuer,country_code\n411111,Chase,US\n")

	sources := []SourceSpec{
		{Info: model.SourceInfo{Name: "only", Version: "v1", Format: "csv", Priority: 1}, Path: csvPath},
	}

	_, err := dryRunPipeline().Run(context.Background(), sources, Options{DryRun: true, Source: "absent"})
	assert.Error(t, err)

	report, err := dryRunPipeline().Run(context.Background(), sources, Options{DryRun: true, Source: "only"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Load.Processed)
}

func TestPipelineSurvivesFailedSource(t *testing.T) {
	csvPath := writeSource(t, "good.csv", "bin,issuer,country_code\n411111,Chase,US\n")

	sources := []SourceSpec{
		{Info: model.SourceInfo{Name: "good", Version: "v1", Format: "csv", Priority: 1}, Path: csvPath},
		{Info: model.SourceInfo{Name: "gone", Version: "v1", Format: "csv", Priority: 2}, Path: "/nonexistent/file.csv"},
	}

	report, err := dryRunPipeline().Run(context.Background(), sources, Options{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Load.Processed)

	var failed *SourceReport
	for i := range report.Sources {
		if report.Sources[i].Name == "gone" {
			failed = &report.Sources[i]
		}
	}
	require.NotNil(t, failed)
	assert.NotEmpty(t, failed.Errors)
}

func TestPipelineNoValidRecords(t *testing.T) {
	csvPath := writeSource(t, "empty.csv", "bin,issuer\n")

	sources := []SourceSpec{
		{Info: model.SourceInfo{Name: "empty", Version: "v1", Format: "csv", Priority: 1}, Path: csvPath},
	}

	_, err := dryRunPipeline().Run(context.Background(), sources, Options{DryRun: true})
	assert.Error(t, err)
}

func TestPipelineUnsupportedFormat(t *testing.T) {
	_, err := extractSource(SourceSpec{
		Info: model.SourceInfo{Name: "x", Format: "parquet"},
		Path: "x.parquet",
	})
	assert.Error(t, err)
}

func TestPipelineRejectsMergedWithoutCountry(t *testing.T) {
	// A YAML-recovered record carries the sentinel country code and still
	// loads; only records with no code at all are rejected upstream, so
	// the merged validation gate should keep sentinel rows.
	yamlPath := writeSource(t, "loose.yml", "411111: Some Bank\n411111: Some Bank Again\n")

	sources := []SourceSpec{
		{Info: model.SourceInfo{Name: "loose", Version: "v1", Format: "yaml", Priority: 4}, Path: yamlPath},
	}

	report, err := dryRunPipeline().Run(context.Background(), sources, Options{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Load.Processed)
	assert.Equal(t, 0, report.InvalidMerged)
}

// connRefusedError looks like a pgx error raised before any data reached
// the server, the signature of a dead connection.
type connRefusedError struct{}

func (connRefusedError) Error() string     { return "connection refused" }
func (connRefusedError) SafeToRetry() bool { return true }

func TestPipelineMarksRunFailedWhenStoreDown(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	// pgxmock needs the expected and actual argument counts to line up even
	// when the values don't matter: 3 for the run insert, 22 for the bins
	// upsert, 6 for the failure update.
	anyArgs := func(n int) []any {
		args := make([]any, n)
		for i := range args {
			args[i] = pgxmock.AnyArg()
		}
		return args
	}

	// The run row is created, the store dies on the first upsert, and the
	// run must land on status failed, not completed.
	mock.ExpectExec("INSERT INTO bin_data.etl_runs").
		WithArgs(anyArgs(3)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("INSERT INTO bin_data.bins").
		WithArgs(anyArgs(22)...).
		WillReturnError(connRefusedError{})
	mock.ExpectExec(`UPDATE bin_data.etl_runs(?s:.*)status = 'failed'`).
		WithArgs(anyArgs(6)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	csvPath := writeSource(t, "down.csv",
		"bin,issuer,country_code\n411111,Chase,US\n521234,Barclays,GB\n")
	sources := []SourceSpec{
		{Info: model.SourceInfo{Name: "down", Version: "v1", Format: "csv", Priority: 1}, Path: csvPath},
	}

	review := merge.NewMemoryReview()
	merger := merge.New(merge.NewResolver(merge.DefaultMargin), review, review)
	p := NewPipeline(NewRunLog(mock), load.New(mock), merger, nil)

	report, err := p.Run(context.Background(), sources, Options{})
	require.Error(t, err)
	assert.Equal(t, 1, report.Load.Failed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExtractSourceDispatch(t *testing.T) {
	csvPath := writeSource(t, "a.csv", "bin,issuer\n411111,Bank\n")

	res, err := extractSource(SourceSpec{
		Info:    model.SourceInfo{Name: "a", Format: "csv"},
		Path:    csvPath,
		Mapping: extract.ColumnMapping{"bin": "bin"},
	})
	require.NoError(t, err)
	assert.Len(t, res.Records, 1)
}

package cmd

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cirrushq/cirrus/pkg/datasource"
	"github.com/cirrushq/cirrus/pkg/output"
)

type fakeDrive struct {
	files []datasource.File
}

func (f *fakeDrive) BrowseFiles(context.Context, datasource.BrowseFilesRequest) (*datasource.BrowseFilesResponse, error) {
	return &datasource.BrowseFilesResponse{
		Buckets: []datasource.FileBucket{{Bucket: "data", Files: f.files}},
	}, nil
}

func (f *fakeDrive) DownloadFile(context.Context, datasource.DownloadFileRequest) (*datasource.BlobStream, error) {
	return datasource.BlobStreamOf(&datasource.Blob{
		Data: []byte("contents"),
		Meta: datasource.BlobMeta{FileName: "a.txt", MimeType: "text/plain", Size: 8},
	}), nil
}

// fanoutDrive lists two buckets whose first pages are both truncated, each
// with its own continuation marker.
type fanoutDrive struct{}

func (f *fanoutDrive) BrowseFiles(_ context.Context, req datasource.BrowseFilesRequest) (*datasource.BrowseFilesResponse, error) {
	switch req.NextPageParameters["marker"] {
	case "alpha-2":
		return &datasource.BrowseFilesResponse{Buckets: []datasource.FileBucket{{
			Bucket: "alpha",
			Files:  []datasource.File{{ID: "alpha/a2.txt", Name: "a2.txt", Size: 2, Type: datasource.EntryFile}},
		}}}, nil
	case "beta-2":
		return &datasource.BrowseFilesResponse{Buckets: []datasource.FileBucket{{
			Bucket: "beta",
			Files:  []datasource.File{{ID: "beta/b2.txt", Name: "b2.txt", Size: 2, Type: datasource.EntryFile}},
		}}}, nil
	}
	return &datasource.BrowseFilesResponse{Buckets: []datasource.FileBucket{
		{
			Bucket:             "alpha",
			Files:              []datasource.File{{ID: "alpha/a1.txt", Name: "a1.txt", Size: 1, Type: datasource.EntryFile}},
			IsTruncated:        true,
			NextPageParameters: map[string]string{"marker": "alpha-2"},
		},
		{
			Bucket:             "beta",
			Files:              []datasource.File{{ID: "beta/b1.txt", Name: "b1.txt", Size: 1, Type: datasource.EntryFile}},
			IsTruncated:        true,
			NextPageParameters: map[string]string{"marker": "beta-2"},
		},
	}}, nil
}

func (f *fanoutDrive) DownloadFile(context.Context, datasource.DownloadFileRequest) (*datasource.BlobStream, error) {
	return nil, datasource.ConfigErrorf("fanout", "not supported")
}

func init() {
	registry.RegisterDrive("fanout", func(datasource.Credentials, *zap.Logger) (datasource.OnlineDrive, error) {
		return &fanoutDrive{}, nil
	})
	registry.RegisterDrive("fake", func(datasource.Credentials, *zap.Logger) (datasource.OnlineDrive, error) {
		return &fakeDrive{files: []datasource.File{
			{ID: "data/report.csv", Name: "report.csv", Size: 2048, Type: datasource.EntryFile},
			{ID: "data/note.txt", Name: "note.txt", Size: 10, Type: datasource.EntryFile},
			{ID: "data/.hidden", Name: ".hidden", Size: 5, Type: datasource.EntryFile},
			{ID: "data/sub", Name: "sub", Type: datasource.EntryFolder},
		}}, nil
	})
}

func parseRecords(t *testing.T, out string) []output.Record {
	t.Helper()
	var records []output.Record
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		var rec output.Record
		require.NoError(t, json.Unmarshal([]byte(line), &rec), "line: %s", line)
		records = append(records, rec)
	}
	return records
}

func TestBrowseCommand(t *testing.T) {
	out, err := executeCommand(t, "browse", "fake", "--bucket", "data")
	require.NoError(t, err)

	records := parseRecords(t, out)
	// Hidden entry dropped by default; 3 entries plus summary.
	require.Len(t, records, 4)

	var names []string
	for _, rec := range records[:3] {
		assert.Equal(t, output.TypeEntry, rec.Type)
		assert.Equal(t, "fake", rec.Connector)
		var entry output.EntryRecord
		require.NoError(t, json.Unmarshal(rec.Data, &entry))
		names = append(names, entry.Name)
	}
	assert.Equal(t, []string{"report.csv", "note.txt", "sub"}, names)

	last := records[len(records)-1]
	assert.Equal(t, output.TypeSummary, last.Type)
	var sum output.SummaryRecord
	require.NoError(t, json.Unmarshal(last.Data, &sum))
	assert.Equal(t, int64(3), sum.Entries)
	assert.Equal(t, int64(2058), sum.Bytes)
}

func TestBrowseCommandFilters(t *testing.T) {
	out, err := executeCommand(t, "browse", "fake",
		"--include", "*.csv", "--min-size", "1KiB")
	require.NoError(t, err)

	records := parseRecords(t, out)
	require.Len(t, records, 2)

	var entry output.EntryRecord
	require.NoError(t, json.Unmarshal(records[0].Data, &entry))
	assert.Equal(t, "report.csv", entry.Name)
}

func TestBrowseCommandAllFollowsEachTruncatedBucket(t *testing.T) {
	out, err := executeCommand(t, "browse", "fanout", "--all")
	require.NoError(t, err)

	records := parseRecords(t, out)
	// Both buckets' continuations are fetched: 4 entries plus summary.
	require.Len(t, records, 5)

	byName := map[string]string{}
	for _, rec := range records[:4] {
		var entry output.EntryRecord
		require.NoError(t, json.Unmarshal(rec.Data, &entry))
		byName[entry.Name] = entry.Bucket
	}
	assert.Equal(t, map[string]string{
		"a1.txt": "alpha",
		"b1.txt": "beta",
		"a2.txt": "alpha",
		"b2.txt": "beta",
	}, byName)
}

func TestBrowseCommandBadPattern(t *testing.T) {
	_, err := executeCommand(t, "browse", "fake", "--include", "[oops")
	require.Error(t, err)
}

func TestBrowseCommandInvalidOutput(t *testing.T) {
	_, err := executeCommand(t, "browse", "fake", "--output", "yaml")
	require.Error(t, err)
	assert.Equal(t, foundry.ExitInvalidArgument, ExitCode(err))
}

func TestBrowseCommandUnknownConnector(t *testing.T) {
	_, err := executeCommand(t, "browse", "no-such-drive")
	require.Error(t, err)
	assert.True(t, datasource.IsConfiguration(err))
}

package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cirrushq/cirrus/internal/observability"
	"github.com/cirrushq/cirrus/pkg/datasource"
	"github.com/cirrushq/cirrus/pkg/match"
	"github.com/cirrushq/cirrus/pkg/output"
)

var browseCmd = &cobra.Command{
	Use:   "browse [connector]",
	Short: "List entries in a drive connector",
	Long: `List one page of entries from a drive connector, or the full listing
with --all.

Each entry is emitted as a cirrus.entry.v1 JSONL record; the run ends with
a cirrus.summary.v1 record. Include/exclude globs and size/date/regex
filters narrow the output client-side.

Examples:
  cirrus browse aws_s3 -p my-s3-profile --bucket data --prefix reports/
  cirrus browse azure_blob --cred account_name=acct --cred account_key=... --all
  cirrus browse aws_s3 -p prod --bucket logs --include '**/*.gz' --min-size 1MiB`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBrowse,
}

var (
	browseBucket   string
	browsePrefix   string
	browseMaxKeys  int
	browsePage     []string
	browseAll      bool
	browseMaxPages int
	browseOutput   string

	browseIncludes      []string
	browseExcludes      []string
	browseIncludeHidden bool
	browseMinSize       string
	browseMaxSize       string
	browseAfter         string
	browseBefore        string
	browseNameRegex     string
)

func init() {
	rootCmd.AddCommand(browseCmd)

	browseCmd.Flags().StringVar(&browseBucket, "bucket", "", "Bucket/container name (empty lists top level)")
	browseCmd.Flags().StringVar(&browsePrefix, "prefix", "", "Folder path or parent ID to scope the listing")
	browseCmd.Flags().IntVar(&browseMaxKeys, "max-keys", 0, "Page size (0 = connector default)")
	browseCmd.Flags().StringArrayVar(&browsePage, "page", nil, "Continuation parameter key=value from a previous page (repeatable)")
	browseCmd.Flags().BoolVar(&browseAll, "all", false, "Follow pagination until the listing is exhausted")
	browseCmd.Flags().IntVar(&browseMaxPages, "max-pages", 1000, "Max pages to fetch with --all before truncating")
	browseCmd.Flags().StringVar(&browseOutput, "output", "jsonl", "Output format (jsonl|table)")

	browseCmd.Flags().StringArrayVar(&browseIncludes, "include", nil, "Include glob pattern (repeatable)")
	browseCmd.Flags().StringArrayVar(&browseExcludes, "exclude", nil, "Exclude glob pattern (repeatable)")
	browseCmd.Flags().BoolVar(&browseIncludeHidden, "include-hidden", false, "Keep dot-prefixed entries")
	browseCmd.Flags().StringVar(&browseMinSize, "min-size", "", "Minimum file size (e.g. 1KiB, 10MB)")
	browseCmd.Flags().StringVar(&browseMaxSize, "max-size", "", "Maximum file size")
	browseCmd.Flags().StringVar(&browseAfter, "modified-after", "", "Keep files modified at or after this date (ISO 8601)")
	browseCmd.Flags().StringVar(&browseBefore, "modified-before", "", "Keep files modified before this date (ISO 8601)")
	browseCmd.Flags().StringVar(&browseNameRegex, "name-regex", "", "Regex applied to entry names")
}

func runBrowse(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if browseOutput != "jsonl" && browseOutput != "table" {
		return exitError(foundry.ExitInvalidArgument, "Invalid --output value", fmt.Errorf("expected jsonl or table"))
	}

	connectorArg := ""
	if len(args) > 0 {
		connectorArg = args[0]
	}
	name, creds, err := resolveCredentials(connectorArg)
	if err != nil {
		return err
	}

	matcher, err := match.New(match.Config{
		Includes:      browseIncludes,
		Excludes:      browseExcludes,
		IncludeHidden: browseIncludeHidden,
	})
	if err != nil {
		return err
	}
	filter, err := match.NewFilter(match.FilterConfig{
		MinSize:        browseMinSize,
		MaxSize:        browseMaxSize,
		ModifiedAfter:  browseAfter,
		ModifiedBefore: browseBefore,
		NameRegex:      browseNameRegex,
	})
	if err != nil {
		return err
	}

	pageParams, err := parsePairs("page", browsePage)
	if err != nil {
		return err
	}

	drive, err := registry.Drive(name, creds, observability.CLILogger)
	if err != nil {
		return err
	}

	writer := output.NewJSONLWriter(cmd.OutOrStdout(), uuid.New().String(), name)
	defer func() { _ = writer.Close() }()

	start := time.Now()
	var entries, bytes, errCount int64
	var tableRows []*output.EntryRecord

	emit := func(bucket string, files []datasource.File) error {
		kept := match.Apply(filter, files)
		for i := range kept {
			if !matcher.Match(kept[i].Name) {
				continue
			}
			rec := output.NewEntryRecord(bucket, &kept[i])
			entries++
			if kept[i].Type == datasource.EntryFile {
				bytes += kept[i].Size
			}
			if browseOutput == "table" {
				tableRows = append(tableRows, rec)
				continue
			}
			if err := writer.WriteEntry(ctx, rec); err != nil {
				return err
			}
		}
		return nil
	}

	// Each truncated bucket carries its own continuation, so follow-up
	// requests queue per bucket rather than sharing one cursor.
	queue := []datasource.BrowseFilesRequest{{
		Bucket:             browseBucket,
		Prefix:             browsePrefix,
		MaxKeys:            browseMaxKeys,
		NextPageParameters: pageParams,
	}}

	pages := 0
	for len(queue) > 0 {
		req := queue[0]
		queue = queue[1:]

		resp, err := drive.BrowseFiles(ctx, req)
		if err != nil {
			errCount++
			_ = writer.WriteError(ctx, output.NewErrorRecord(browsePrefix, err))
			return err
		}
		pages++

		for _, bucket := range resp.Buckets {
			if err := emit(bucket.Bucket, bucket.Files); err != nil {
				return err
			}
			if !bucket.IsTruncated {
				continue
			}
			if !browseAll {
				if browseOutput != "table" {
					observability.CLILogger.Info("Listing truncated, rerun with --page or --all",
						zap.String("bucket", bucket.Bucket),
						zap.Any("next_page", bucket.NextPageParameters))
				}
				continue
			}
			follow := req
			follow.NextPageParameters = bucket.NextPageParameters
			if bucket.Bucket != "" {
				follow.Bucket = bucket.Bucket
			}
			queue = append(queue, follow)
		}

		if pages >= browseMaxPages && len(queue) > 0 {
			observability.CLILogger.Warn("Page limit reached, output truncated",
				zap.Int("max_pages", browseMaxPages))
			break
		}
	}

	if browseOutput == "table" {
		return browseTable(cmd, tableRows)
	}

	elapsed := time.Since(start)
	return writer.WriteSummary(ctx, &output.SummaryRecord{
		Entries:       entries,
		Bytes:         bytes,
		Errors:        errCount,
		Duration:      elapsed,
		DurationHuman: elapsed.Round(time.Millisecond).String(),
	})
}

func browseTable(cmd *cobra.Command, rows []*output.EntryRecord) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "TYPE\tSIZE\tNAME\tID")
	for _, r := range rows {
		size := ""
		if r.EntryType == string(datasource.EntryFile) {
			size = match.FormatSize(r.Size)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.EntryType, size, r.Name, r.ID)
	}
	return nil
}

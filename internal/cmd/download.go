package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cirrushq/cirrus/internal/observability"
	"github.com/cirrushq/cirrus/pkg/datasource"
	"github.com/cirrushq/cirrus/pkg/match"
)

var downloadCmd = &cobra.Command{
	Use:   "download [connector] <file-id>",
	Short: "Download one file from a drive connector",
	Long: `Download a file identified by an ID returned from browse.

Content is written to --out, to the entry's base name in the current
directory, or to stdout with --out -. Large files arrive as a sequence
of chunks and are written in order.

Examples:
  cirrus download aws_s3 -p prod data/reports/2024.csv
  cirrus download -p my-dropbox 'id:abcd1234' --out report.pdf
  cirrus download onedrive --cred access_token=... FILEID --out -`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runDownload,
}

var downloadOut string

func init() {
	rootCmd.AddCommand(downloadCmd)
	downloadCmd.Flags().StringVarP(&downloadOut, "out", "o", "", "Output path ('-' for stdout, default: entry base name)")
}

func runDownload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	connectorArg := ""
	fileID := args[0]
	if len(args) == 2 {
		connectorArg = args[0]
		fileID = args[1]
	}

	name, creds, err := resolveCredentials(connectorArg)
	if err != nil {
		return err
	}
	drive, err := registry.Drive(name, creds, observability.CLILogger)
	if err != nil {
		return err
	}

	start := time.Now()
	stream, err := drive.DownloadFile(ctx, datasource.DownloadFileRequest{ID: fileID})
	if err != nil {
		return err
	}

	var dst io.Writer
	var closeDst func() error
	var written int64
	outPath := downloadOut

	for stream.Next() {
		blob := stream.Blob()
		if dst == nil {
			if outPath == "-" {
				dst = cmd.OutOrStdout()
				closeDst = func() error { return nil }
			} else {
				if outPath == "" {
					outPath = filepath.Base(blob.Meta.FileName)
					if outPath == "" || outPath == "." {
						outPath = filepath.Base(fileID)
					}
				}
				f, err := os.Create(outPath)
				if err != nil {
					return exitError(foundry.ExitFileWriteError, "Failed to create output file", err)
				}
				dst = f
				closeDst = f.Close
			}
		}
		if _, err := dst.Write(blob.Data); err != nil {
			_ = closeDst()
			return exitError(foundry.ExitFileWriteError, "Failed to write output file", err)
		}
		written += int64(len(blob.Data))
	}
	if err := stream.Err(); err != nil {
		if closeDst != nil {
			_ = closeDst()
		}
		return err
	}
	if dst == nil {
		return fmt.Errorf("download produced no content for %q", fileID)
	}
	if err := closeDst(); err != nil {
		return err
	}

	if outPath != "-" {
		observability.CLILogger.Info("Download complete",
			zap.String("path", outPath),
			zap.String("size", match.FormatSize(written)),
			zap.Duration("elapsed", time.Since(start).Round(time.Millisecond)))
	}
	return nil
}

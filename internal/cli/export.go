// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"

	"github.com/adiadia/tracker/internal/app"
	"github.com/adiadia/tracker/internal/archive"
	"github.com/spf13/cobra"
)

func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		flags  rangeFlags
		dir    string
		bucket string
		key    string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Archive an event range as snappy compressed NDJSON",
		Long: `Write the events in [from, until] to an object store. The target is
the local directory given by --dir, or else the S3 bucket from --bucket or
ARCHIVE_BUCKET.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			from, until, err := flags.bounds()
			if err != nil {
				return err
			}

			cfg := rootOpts.Config()
			if bucket == "" {
				bucket = cfg.ArchiveBucket
			}

			var store archive.ObjectStore
			switch {
			case dir != "":
				local, err := archive.NewLocalStore(dir)
				if err != nil {
					return WrapExitError(ExitCommandError, "bad --dir", err)
				}
				store = local
			case bucket != "":
				s3Store, err := archive.NewS3Store(ctx, bucket, archive.S3Config{
					Region:       cfg.S3Region,
					Endpoint:     cfg.S3Endpoint,
					UsePathStyle: cfg.S3PathStyle,
				})
				if err != nil {
					return WrapExitError(ExitCommandError, "object store unavailable", err)
				}
				store = s3Store
			default:
				return NewExitError(ExitCommandError, "one of --dir or --bucket is required")
			}

			a, err := rootOpts.openApp(ctx, cmd, app.Options{WithoutHook: true})
			if err != nil {
				return err
			}
			defer a.Close()

			types, err := resolveIDs(a.EventTypes, flags.types)
			if err != nil {
				return WrapExitError(ExitCommandError, "bad --type", err)
			}

			exporter := archive.NewExporter(a.Tracker, store, rootOpts.Logger(cmd, cfg.Env))
			res, err := exporter.Export(ctx, archive.Request{
				From:  from,
				Until: until,
				Users: userIDs(flags.users),
				Types: types,
				Key:   key,
			})
			if err != nil {
				return WrapExitError(ExitFailure, "export failed", err)
			}

			return newPrinter(rootOpts, cmd.OutOrStdout()).emit(res, func(w io.Writer) {
				fmt.Fprintf(w, "exported %d events (%d bytes) to %s\n", res.Events, res.Bytes, res.Key)
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&dir, "dir", "", "export into a local directory instead of S3")
	cmd.Flags().StringVar(&bucket, "bucket", "", "S3 bucket, overrides ARCHIVE_BUCKET")
	cmd.Flags().StringVar(&key, "key", "", "object key (default events/<from>-<until>.ndjson.sz)")
	return cmd
}

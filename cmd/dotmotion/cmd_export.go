package main

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/nvandessel/dotmotion/internal/export"
	"github.com/nvandessel/dotmotion/internal/objectstore"
	"github.com/spf13/cobra"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored responses as JSON or CSV",
		Long: `Write every stored response to stdout or a file.

With --upload the export is written to --output (or a temporary file) and
copied to the S3-compatible bucket configured under export: in config.yaml.

Examples:
  dotmotion export > results.json
  dotmotion export --format csv -o results.csv
  dotmotion export --format csv -o results.csv --upload`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			formatStr, _ := cmd.Flags().GetString("format")
			output, _ := cmd.Flags().GetString("output")
			upload, _ := cmd.Flags().GetBool("upload")

			format, err := export.ParseFormat(formatStr)
			if err != nil {
				return err
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := commandContext(cmd)

			if output == "" && !upload {
				return export.Write(ctx, a.store, format, cmd.OutOrStdout())
			}

			var uploader *objectstore.MinioClient
			if upload {
				// Fail on bad credentials before writing anything.
				uploader, err = objectstore.NewMinioClient(a.cfg.Export, a.logger)
				if err != nil {
					return err
				}
				if err := uploader.EnsureBucket(ctx); err != nil {
					return err
				}
			}

			outPath := output
			if outPath == "" {
				f, err := os.CreateTemp("", "dotmotion-export-*"+format.Extension())
				if err != nil {
					return fmt.Errorf("create temp file: %w", err)
				}
				outPath = f.Name()
				f.Close()
				defer os.Remove(outPath)
			}
			if err := writeExportFile(ctx, a, format, outPath); err != nil {
				return err
			}

			result := map[string]interface{}{"format": format}
			if output != "" {
				result["path"] = output
			}
			if uploader != nil {
				object, err := objectstore.UploadFile(ctx, uploader, outPath, format.ContentType())
				if err != nil {
					return err
				}
				result["bucket"] = uploader.Bucket()
				result["object"] = object
			}

			if jsonOut {
				return printJSON(cmd, result)
			}
			w := cmd.OutOrStdout()
			if output != "" {
				fmt.Fprintf(w, "Exported to %s\n", output)
			}
			if obj, ok := result["object"]; ok {
				fmt.Fprintf(w, "Uploaded to s3://%s/%s\n", uploader.Bucket(), obj)
			}
			return nil
		},
	}

	cmd.Flags().String("format", "json", "Export format: json or csv")
	cmd.Flags().StringP("output", "o", "", "Output file (default: stdout)")
	cmd.Flags().Bool("upload", false, "Upload the export to the configured bucket")
	return cmd
}

func writeExportFile(ctx context.Context, a *app, format export.Format, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	if err := export.Write(ctx, a.store, format, w); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func newSchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of a response record",
		Long: `Print the JSON Schema describing one exported response record,
or with --array the schema of a whole results.json export.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			array, _ := cmd.Flags().GetBool("array")
			schema := export.RecordSchema()
			if array {
				schema = export.ArraySchema()
			}
			data, err := export.MarshalSchema(schema)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
	cmd.Flags().Bool("array", false, "Describe the full results array instead of a single record")
	return cmd
}

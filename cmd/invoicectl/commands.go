package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/rpattn/invoiceflow/internal/app"
	"github.com/rpattn/invoiceflow/internal/db"
	"github.com/rpattn/invoiceflow/internal/domain"
	"github.com/rpattn/invoiceflow/internal/ingestion"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			return db.RunMigrations(cfg.Database, logger)
		},
	}
}

func newUploadsCmd(opts *rootOptions) *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "uploads",
		Short: "List recent uploads",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(a *app.App) error {
				uploads, err := a.Service.Uploads(cmd.Context(), limit, offset)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tFILE\tSTATUS\tTOTAL\tOK\tFAILED\tUPLOADED")
				for _, u := range uploads {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\t%s\n",
						u.ID, u.OriginalFilename, u.Status.Display(), u.TotalRecordsFound,
						u.SuccessfulRecords, u.FailedRecords, u.UploadedAt.Format("2006-01-02 15:04"))
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum uploads to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "Uploads to skip")
	return cmd
}

func newUploadCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a file and print the proposed mapping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			return opts.withApp(cmd.Context(), func(a *app.App) error {
				resp, err := a.Service.Upload(cmd.Context(), ingestion.UploadRequest{
					FileName: filepath.Base(args[0]),
					Data:     f,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), resp)
			})
		},
	}
}

func newProposeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "propose <upload-id>",
		Short: "Print the mapping proposal for an upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUploadID(args[0])
			if err != nil {
				return err
			}
			return opts.withApp(cmd.Context(), func(a *app.App) error {
				resp, err := a.Service.ProposeMapping(cmd.Context(), id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), resp)
			})
		},
	}
}

// mappingFile is the yaml layout accepted by confirm:
//
//	mappings:
//	  - source_field: Invoice No
//	    target_table: invoice
//	    target_column: invoice_number
type mappingFile struct {
	Mappings []domain.FieldMapping `yaml:"mappings"`
}

func newConfirmCmd(opts *rootOptions) *cobra.Command {
	var mappingsPath string
	cmd := &cobra.Command{
		Use:   "confirm <upload-id>",
		Short: "Insert an upload's records with the mappings from a yaml file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUploadID(args[0])
			if err != nil {
				return err
			}
			mappings, err := readMappingFile(mappingsPath)
			if err != nil {
				return err
			}
			return opts.withApp(cmd.Context(), func(a *app.App) error {
				report, err := a.Service.ConfirmMappings(cmd.Context(), id, mappings)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}
	cmd.Flags().StringVar(&mappingsPath, "mappings", "", "Path to a yaml file listing the confirmed mappings")
	_ = cmd.MarkFlagRequired("mappings")
	return cmd
}

func readMappingFile(path string) ([]domain.FieldMapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mappings: %w", err)
	}
	var file mappingFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse mappings %s: %w", path, err)
	}
	if len(file.Mappings) == 0 {
		return nil, fmt.Errorf("%s lists no mappings", path)
	}
	return file.Mappings, nil
}

func parseUploadID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid upload id %q", raw)
	}
	return id, nil
}

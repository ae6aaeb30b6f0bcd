package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/inventory/internal/core"
	"github.com/JonMunkholm/inventory/internal/portal"
	"github.com/JonMunkholm/inventory/internal/sheet"
)

func newTemplateCmd(e *env) *cobra.Command {
	var (
		output       string
		templatePath string
	)

	cmd := &cobra.Command{
		Use:   "template",
		Short: "Write the inventory upload template workbook",
		Example: `  # Write the template to the current directory
  inventoryctl template

  # Write a custom column layout
  inventoryctl template --layout layout.yaml -o custom.xlsx`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tmpl, err := loadTemplate(templatePath)
			if err != nil {
				return err
			}
			data, err := tmpl.Workbook()
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("write template: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Template written to %s (%d columns)\n", output, len(tmpl.Columns))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "inventory_template.xlsx", "output file")
	cmd.Flags().StringVar(&templatePath, "layout", "", "YAML column layout to use instead of the built-in one")

	return cmd
}

func newValidateCmd(e *env) *cobra.Command {
	var (
		templatePath string
		remote       bool
	)

	cmd := &cobra.Command{
		Use:   "validate FILE",
		Short: "Check a workbook against the upload template",
		Long: `Checks the column structure and cell values of a workbook.

By default the check runs locally against the template. With --remote the
file is sent to the portal's validateFile endpoint instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			upload, err := readFile(args[0])
			if err != nil {
				return err
			}

			var resp core.ValidateResponse
			if remote {
				client, err := e.client()
				if err != nil {
					return err
				}
				ctx, cancel := context.WithTimeout(cmd.Context(), core.DefaultValidateTimeout)
				defer cancel()
				resp, err = client.Validate(ctx, core.ValidateRequest{
					File:      upload,
					Language:  e.locale,
					Namespace: e.namespace,
				})
				if err != nil {
					return e.userError(err)
				}
			} else {
				tmpl, err := loadTemplate(templatePath)
				if err != nil {
					return err
				}
				resp = tmpl.Validate(upload.Name, upload.Content)
			}

			report := core.NewValidationReport(resp)
			printReport(cmd.OutOrStdout(), report)
			if !report.Passed {
				return fmt.Errorf("%s: %d validation errors", upload.Name, report.ErrorCount())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&templatePath, "layout", "", "YAML column layout to use instead of the built-in one")
	cmd.Flags().BoolVar(&remote, "remote", false, "validate through the portal")

	return cmd
}

func loadTemplate(path string) (*sheet.Template, error) {
	if path == "" {
		return sheet.DefaultTemplate(), nil
	}
	return sheet.LoadTemplateFile(path)
}

func readFile(path string) (core.Upload, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return core.Upload{}, fmt.Errorf("read %s: %w", path, err)
	}
	return core.Upload{
		Name:    filepath.Base(path),
		Size:    int64(len(content)),
		Content: content,
	}, nil
}

// client builds a portal client from --portal.
func (e *env) client() (*portal.Client, error) {
	if e.portalURL == "" {
		return nil, fmt.Errorf("no portal configured: set --portal or PORTAL_BASE_URL")
	}
	return portal.New(portal.Config{BaseURL: e.portalURL})
}

// userError renders err the way the form shows it.
func (e *env) userError(err error) error {
	msg := e.catalog.MapError(err, e.locale)
	if msg.Action != "" {
		return fmt.Errorf("%s %s (%s)", msg.Message, msg.Action, msg.Code)
	}
	return fmt.Errorf("%s (%s)", msg.Message, msg.Code)
}

func printReport(w io.Writer, r core.ValidationReport) {
	if r.Passed {
		fmt.Fprintf(w, "Validation passed: %d columns, %d rows\n", r.ColumnCount, r.RowCount)
		if r.DataTypes != "" {
			fmt.Fprintf(w, "Data types: %s\n", r.DataTypes)
		}
		if r.Encoding != "" {
			fmt.Fprintf(w, "Encoding: %s\n", r.Encoding)
		}
		return
	}
	fmt.Fprintln(w, "Validation failed")
	for _, msg := range r.Structural {
		fmt.Fprintf(w, "  structure: %s\n", msg)
	}
	for _, msg := range r.Data {
		fmt.Fprintf(w, "  data: %s\n", msg)
	}
	if r.MoreData > 0 {
		fmt.Fprintf(w, "  ... and %d more\n", r.MoreData)
	}
}

// waitTimeout bounds how long the import command waits for one step.
const waitTimeout = 5 * time.Minute

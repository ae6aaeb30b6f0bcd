package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/inventory/internal/core"
)

func newImportCmd(e *env) *cobra.Command {
	var (
		inventoryID string
		action      string
	)

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import a workbook into an inventory through the portal",
		Long: `Runs a form session against the portal: validates the workbook, processes
it into datasets and saves the form.

Without --inventory a new inventory is created from the workbook. With
--inventory the existing inventory is loaded and the workbook is merged into
it; datasets with matching names are only overwritten after confirmation.`,
		Example: `  # Create a draft inventory from a workbook
  inventoryctl import --portal https://portal.example.com/inventory datasets.xlsx

  # Merge a workbook into inventory 42 and submit it
  inventoryctl import --inventory 42 --action submit datasets.xlsx`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			upload, err := readFile(args[0])
			if err != nil {
				return err
			}
			var act core.FormAction
			if action != "none" {
				if act, err = core.ParseFormAction(action); err != nil {
					return err
				}
			}
			client, err := e.client()
			if err != nil {
				return err
			}

			svc := core.NewService(client, core.ServiceConfig{Namespace: e.namespace}, slog.Default())
			defer svc.Shutdown(context.WithoutCancel(cmd.Context()))

			mode := core.ModeCreate
			if inventoryID != "" {
				mode = core.ModeUpdate
			}
			r := &importRun{
				env:    e,
				svc:    svc,
				out:    cmd.OutOrStdout(),
				upload: upload,
			}
			return r.run(cmd.Context(), core.OpenRequest{
				Mode:        string(mode),
				InventoryID: inventoryID,
				Namespace:   e.namespace,
				Locale:      e.locale,
			}, act)
		},
	}

	cmd.Flags().StringVar(&inventoryID, "inventory", "", "inventory to merge the workbook into")
	cmd.Flags().StringVar(&action, "action", "draft", "how to save the form: draft, submit or none")

	return cmd
}

// importRun drives one session through the import dialogs.
type importRun struct {
	env    *env
	svc    *core.Service
	out    io.Writer
	upload core.Upload
}

func (r *importRun) run(ctx context.Context, req core.OpenRequest, action core.FormAction) error {
	sess, err := r.svc.Open(ctx, req)
	if err != nil {
		return r.env.userError(err)
	}
	defer r.svc.Close(sess.ID())

	v, err := sess.View()
	if err != nil {
		return err
	}
	if v.LoadError != nil {
		return r.statusError(v.LoadError)
	}
	fmt.Fprintf(r.out, "%s (%d dataset(s))\n", v.Title, v.TotalDatasets)

	if err := r.openImport(ctx, sess); err != nil {
		return err
	}
	if err := sess.SelectFile(r.upload); err != nil {
		return r.env.userError(err)
	}

	v, err = r.step(ctx, sess, sess.StartValidate)
	if v.Import.Report != nil {
		printReport(r.out, *v.Import.Report)
	}
	if err != nil {
		return err
	}
	if v.Import.State != core.StateValidated {
		return fmt.Errorf("%s did not pass validation", r.upload.Name)
	}

	v, err = r.step(ctx, sess, sess.StartProcess)
	if err != nil {
		return err
	}
	if v.PendingMerge != nil {
		if err := r.confirmMerge(ctx, sess, v.PendingMerge); err != nil {
			return err
		}
		if v, err = sess.View(); err != nil {
			return err
		}
	}
	if v.LastImport != nil {
		fmt.Fprintln(r.out, v.LastImport.Message)
		if v.LastImport.Merge != nil {
			fmt.Fprint(r.out, v.LastImport.Merge.String())
		}
	}

	if action == "" {
		return nil
	}
	resp, err := sess.Submit(ctx, action)
	if err != nil {
		return r.env.userError(err)
	}
	fmt.Fprintf(r.out, "Inventory %s saved (%s)\n", resp.InventoryID, action)
	return nil
}

// openImport opens the upload dialog, asking before an existing form is
// cleared.
func (r *importRun) openImport(ctx context.Context, sess *core.Session) error {
	err := sess.OpenImport(false)
	if !errors.Is(err, core.ErrOverwriteUnconfirmed) {
		if err != nil {
			return r.env.userError(err)
		}
		return nil
	}
	msg := r.env.catalog.MapError(err, r.env.locale)
	ok, err := r.env.prompt().Confirm(ctx, msg.Message, msg.Action, false)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAborted
	}
	return sess.OpenImport(true)
}

// step starts an upload step and waits for its result.
func (r *importRun) step(ctx context.Context, sess *core.Session, start func() error) (core.View, error) {
	if err := start(); err != nil {
		return core.View{}, r.env.userError(err)
	}
	ctx, cancel := context.WithTimeout(ctx, waitTimeout)
	defer cancel()
	if err := sess.WaitIdle(ctx); err != nil {
		return core.View{}, err
	}
	v, err := sess.View()
	if err != nil {
		return core.View{}, err
	}
	if v.Import.Error != nil {
		return v, r.statusError(v.Import.Error)
	}
	return v, nil
}

// confirmMerge asks before datasets sharing a name with the workbook are
// overwritten.
func (r *importRun) confirmMerge(ctx context.Context, sess *core.Session, plan *core.MergePlan) error {
	fmt.Fprintf(r.out, "Existing datasets: %s\n", strings.Join(plan.ExistingNames, ", "))
	fmt.Fprintf(r.out, "Datasets in file:  %s\n", strings.Join(plan.IncomingNames, ", "))
	for _, d := range plan.Duplicates {
		fmt.Fprintf(r.out, "  %q matches existing dataset %d\n", d.Name, d.ExistingID)
	}
	ok, err := r.env.prompt().Confirm(ctx,
		plan.Err().Error(),
		"Matching datasets are replaced by the workbook; the others are added.",
		false,
	)
	if err != nil {
		_ = sess.CancelMerge()
		return err
	}
	if !ok {
		if err := sess.CancelMerge(); err != nil {
			return err
		}
		fmt.Fprintln(r.out, "Merge cancelled, the inventory was not changed")
		return ErrAborted
	}
	if _, err := sess.ConfirmMerge(); err != nil {
		return r.env.userError(err)
	}
	return nil
}

func (r *importRun) statusError(se *core.StatusError) error {
	msg := r.env.catalog.Localize(se.UserMessage, r.env.locale)
	if se.Detail != "" {
		return fmt.Errorf("%s %s (%s): %s", msg.Message, msg.Action, msg.Code, se.Detail)
	}
	return fmt.Errorf("%s %s (%s)", msg.Message, msg.Action, msg.Code)
}

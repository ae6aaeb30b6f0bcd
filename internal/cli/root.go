// Package cli is the inventoryctl command line: spreadsheet templates and
// validation, a scripted import through a form session, and the server.
package cli

import (
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/inventory/internal/logging"
	"github.com/JonMunkholm/inventory/internal/messages"
)

// Option customizes the root command.
type Option func(*env)

// WithPrompter replaces the interactive prompts.
func WithPrompter(p Prompter) Option {
	return func(e *env) { e.prompter = p }
}

// env is shared by every subcommand.
type env struct {
	prompter Prompter
	catalog  *messages.Catalog

	portalURL string
	namespace string
	locale    string
	logLevel  string
	assumeYes bool
}

// prompt returns the prompter, or one that accepts every dialog when --yes
// is set.
func (e *env) prompt() Prompter {
	if e.assumeYes {
		return acceptAll{}
	}
	return e.prompter
}

// NewRootCmd builds the inventoryctl command tree.
func NewRootCmd(opts ...Option) *cobra.Command {
	e := &env{
		prompter: SurveyPrompter{},
		catalog:  messages.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	cmd := &cobra.Command{
		Use:   "inventoryctl",
		Short: "Inventory onboarding form tool",
		Long: `inventoryctl works with inventory onboarding spreadsheets.

It generates the upload template, validates workbooks against it, imports a
workbook into an inventory through the portal, and runs the form service.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
			if e.portalURL == "" {
				e.portalURL = os.Getenv("PORTAL_BASE_URL")
			}
			if e.namespace == "" {
				e.namespace = os.Getenv("PORTAL_NAMESPACE")
			}
			slog.SetDefault(logging.New(logOutput(cmd), e.logLevel, "text"))
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&e.portalURL, "portal", "", "portal base URL (default $PORTAL_BASE_URL)")
	flags.StringVar(&e.namespace, "namespace", "", "portlet namespace for form fields (default $PORTAL_NAMESPACE)")
	flags.StringVar(&e.locale, "lang", "en", "language for messages")
	flags.StringVar(&e.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	flags.BoolVarP(&e.assumeYes, "yes", "y", false, "answer yes to every confirmation")

	cmd.AddCommand(newTemplateCmd(e))
	cmd.AddCommand(newValidateCmd(e))
	cmd.AddCommand(newImportCmd(e))
	cmd.AddCommand(newServeCmd(e))

	return cmd
}

func logOutput(cmd *cobra.Command) io.Writer {
	return cmd.ErrOrStderr()
}

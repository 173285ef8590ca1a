package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/hoa/internal/auth/app"
)

type options struct {
	configFile   string
	outputFormat string
	verbose      bool
}

// NewRootCmd builds the hoa command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "hoa",
		Short: "hoa - multi-credential identity service",
		Long: `hoa issues signed tokens to identities that prove themselves with
passkeys, shared secrets, external identities or machine bearer tokens.

Configuration is read from the environment (AUTH_*, PORT, LOG_*) and,
when --config or AUTH_CONFIG_FILE is given, from a YAML file on top.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.configFile, "config", "",
		"YAML config file (overrides "+app.ConfigFileEnv+")")
	root.PersistentFlags().StringVarP(&opts.outputFormat, "output", "o", "text",
		"output format (text, json)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false,
		"log at info level for one-off commands")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newKeysCmd(opts))
	root.AddCommand(newMethodsCmd(opts))
	root.AddCommand(newIdentitiesCmd(opts))
	root.AddCommand(newVersionCmd(opts))
	return root
}

// Execute runs the root command and reports failures on stderr.
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

func (o *options) loadConfig() (app.Config, error) {
	if o.configFile != "" {
		if err := os.Setenv(app.ConfigFileEnv, o.configFile); err != nil {
			return app.Config{}, err
		}
	}
	return app.LoadConfig()
}

// openApp builds the application for a one-off command. Logging is kept
// quiet so it does not interleave with command output.
func (o *options) openApp() (*app.Application, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	if !o.verbose {
		cfg.LogLevel = "error"
	}
	return app.New(cfg)
}

func (o *options) printer(w io.Writer) *Printer {
	return NewPrinter(o.outputFormat, w)
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vk/workgraph/internal/app"
	"github.com/vk/workgraph/internal/tracing"
)

// ExitError is an error that carries the process exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(err error) error {
	return &ExitError{Code: 2, Message: err.Error()}
}

// localConfigPath is tried before the user config directory.
const localConfigPath = ".workgraph/config.yaml"

// Execute runs the command line in args. Command output goes to out, logs and
// help for failed invocations go to errOut.
func Execute(ctx context.Context, args []string, out, errOut io.Writer) error {
	c, root := newRootCommand(out, errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return errors.Join(err, c.teardown(ctx))
}

// command holds what the subcommands share: configuration and, once the
// persistent pre-run has happened, the application.
type command struct {
	v       *viper.Viper
	cfgFile string
	out     io.Writer
	errOut  io.Writer
	app     *app.App
}

func newRootCommand(out, errOut io.Writer) (*command, *cobra.Command) {
	c := &command{v: viper.New(), out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "workgraph",
		Short: "Build, check and inspect component workflow graphs",
		Long: `workgraph manages workflows made of catalog components: nodes, the links
between their inputs and outputs, and groups of nodes acting as one.

Components are described in HCL manifests under the catalog directory.
Workflows live in a SQLite database, or in memory for one-off checks.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetOut(out)
	root.SetErr(errOut)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError(err) })

	flags := root.PersistentFlags()
	flags.StringVarP(&c.cfgFile, "config", "c", "", "config file (default: ./"+localConfigPath+" or ~/.config/workgraph/config.yaml)")
	flags.String("catalog", "", "directory of component manifests (.hcl)")
	flags.String("database", "", "SQLite database path; empty keeps workflows in memory")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.String("log-format", "text", "log format: text or json")

	_ = c.v.BindPFlag("catalog", flags.Lookup("catalog"))
	_ = c.v.BindPFlag("database", flags.Lookup("database"))
	_ = c.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = c.v.BindPFlag("log.format", flags.Lookup("log-format"))

	root.AddCommand(
		c.catalogCommand(),
		c.importCommand(),
		c.listCommand(),
		c.validateCommand(),
		c.orderCommand(),
		c.paramsCommand(),
		c.queryCommand(),
		c.cloneCommand(),
		c.exportCommand(),
		c.deleteCommand(),
	)
	return c, root
}

func (c *command) setDefaults() {
	defaults := tracing.DefaultConfig()
	c.v.SetDefault("catalog_cache_ttl", "0s")
	c.v.SetDefault("tracing.enabled", defaults.Enabled)
	c.v.SetDefault("tracing.exporter", defaults.Exporter)
	c.v.SetDefault("tracing.file_path", defaults.FilePath)
	c.v.SetDefault("tracing.otlp_endpoint", defaults.OTLPEndpoint)
	c.v.SetDefault("tracing.sample_rate", defaults.SampleRate)
	c.v.SetDefault("tracing.service_name", defaults.ServiceName)

	c.v.SetEnvPrefix("WORKGRAPH")
	c.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	c.v.AutomaticEnv()
}

// readConfig loads the config file. Lookup order: --config, then
// ./.workgraph/config.yaml, then ~/.config/workgraph/config.yaml. Only an
// explicitly named file is required to exist.
func (c *command) readConfig() error {
	switch {
	case c.cfgFile != "":
		if !fileExists(c.cfgFile) {
			return usageError(fmt.Errorf("config file %s does not exist", c.cfgFile))
		}
		c.v.SetConfigFile(c.cfgFile)
	case fileExists(localConfigPath):
		c.v.SetConfigFile(localConfigPath)
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		c.v.AddConfigPath(filepath.Join(home, ".config", "workgraph"))
		c.v.SetConfigName("config")
		c.v.SetConfigType("yaml")
	}

	if err := c.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return usageError(fmt.Errorf("reading config: %w", err))
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// appConfig assembles the application configuration from viper.
func (c *command) appConfig() (*app.Config, error) {
	var tc tracing.Config
	if err := c.v.UnmarshalKey("tracing", &tc); err != nil {
		return nil, usageError(fmt.Errorf("invalid tracing configuration: %w", err))
	}
	cfg, err := app.NewConfig(app.Config{
		CatalogPath:     c.v.GetString("catalog"),
		DatabasePath:    c.v.GetString("database"),
		CatalogCacheTTL: c.v.GetDuration("catalog_cache_ttl"),
		LogLevel:        strings.ToLower(c.v.GetString("log.level")),
		LogFormat:       strings.ToLower(c.v.GetString("log.format")),
		Tracing:         tc,
	})
	if err != nil {
		return nil, usageError(err)
	}
	return cfg, nil
}

func (c *command) setup(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "help" {
		return nil
	}
	c.setDefaults()
	if err := c.readConfig(); err != nil {
		return err
	}
	cfg, err := c.appConfig()
	if err != nil {
		return err
	}
	a, err := app.NewApp(cmd.Context(), c.errOut, cfg)
	if err != nil {
		return err
	}
	c.app = a
	cmd.SetContext(a.Context(cmd.Context()))
	return nil
}

func (c *command) teardown(ctx context.Context) error {
	if c.app == nil {
		return nil
	}
	err := c.app.Close(ctx)
	c.app = nil
	return err
}

// exactArgs is cobra.ExactArgs reported as a usage error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return usageError(err)
		}
		return nil
	}
}

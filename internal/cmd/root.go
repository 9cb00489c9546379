package cmd

import (
	"io"
	"log/slog"
	"os"

	glamour "github.com/charmbracelet/glamour/styles"
	"github.com/spf13/cobra"

	"github.com/dotcommander/threadline/internal/config"
	"github.com/dotcommander/threadline/internal/logging"
	"github.com/dotcommander/threadline/internal/present"
)

// skipConfig marks commands that must work without a valid configuration.
const skipConfig = "skip-config"

type runtime struct {
	build   BuildInfo
	cfgPath string
	flags   overrides
	cfg     config.Config
	logger  *slog.Logger
	logOut  io.Writer
}

// overrides are the global flags layered over the loaded configuration.
type overrides struct {
	host      string
	port      int
	store     string
	storePath string
	logLevel  string
	logFormat string
	wordWrap  int
}

// NewRootCmd constructs the Cobra root command. Running it without a
// subcommand starts the server.
func NewRootCmd(build BuildInfo) *cobra.Command {
	// XXX: unset error styles in Glamour dark and light styles.
	glamour.DarkStyleConfig.CodeBlock.Chroma.Error.BackgroundColor = new(string)
	glamour.LightStyleConfig.CodeBlock.Chroma.Error.BackgroundColor = new(string)

	rt := &runtime{build: normalizeBuildInfo(build), logOut: os.Stderr}

	rootCmd := &cobra.Command{
		Use:           "threadline",
		Short:         "A threaded research agent with web search, served over SSE.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Example:       randomExample(),
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return rt.load(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.runServe(cmd.Context())
		},
	}

	rootCmd.SetUsageFunc(usageFunc)
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return newFlagParseError(err)
	})

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.Version = rt.build.Version
	rootCmd.SetVersionTemplate(versionTemplate(rt.build))

	initPersistentFlags(rootCmd, rt)
	initListenFlags(rootCmd, &rt.flags)

	// Commands.
	rootCmd.AddCommand(newServeCmd(rt))
	rootCmd.AddCommand(newAskCmd(rt))
	rootCmd.AddCommand(newChatCmd(rt))
	rootCmd.AddCommand(newHistoryCmd(rt))
	rootCmd.AddCommand(newToolsCmd(rt))
	rootCmd.AddCommand(newConfigCmd(rt))
	rootCmd.AddCommand(newManCmd(rootCmd))

	// Enable completion now that we have subcommands.
	rootCmd.InitDefaultCompletionCmd()

	return rootCmd
}

func initPersistentFlags(cmd *cobra.Command, rt *runtime) {
	flags := cmd.PersistentFlags()
	desc := func(name string) string { return present.StdoutStyles().FlagDesc.Render(helpText[name]) }
	flags.StringVar(&rt.cfgPath, "config", "", desc("config"))
	flags.StringVar(&rt.flags.store, "store", "", desc("store"))
	flags.StringVar(&rt.flags.storePath, "store-path", "", desc("store-path"))
	flags.StringVar(&rt.flags.logLevel, "log-level", "", desc("log-level"))
	flags.StringVar(&rt.flags.logFormat, "log-format", "", desc("log-format"))
}

func initListenFlags(cmd *cobra.Command, o *overrides) {
	flags := cmd.Flags()
	flags.StringVar(&o.host, "host", "", present.StdoutStyles().FlagDesc.Render(helpText["host"]))
	flags.IntVar(&o.port, "port", 0, present.StdoutStyles().FlagDesc.Render(helpText["port"]))
}

var helpText = map[string]string{
	"config":     "Settings file (YAML, or TOML with a .toml extension)",
	"store":      "Conversation store driver: memory, jsonl or sqlite",
	"store-path": "Directory (jsonl) or database file (sqlite) of the store",
	"log-level":  "Log level: debug, info, warn or error",
	"log-format": "Log format: text or json",
	"host":       "Address to listen on",
	"port":       "Port to listen on",
	"thread":     "Thread to continue; a new one is created when empty",
	"remote":     "Send the message to a running server at this URL",
	"render":     "Render the answer as markdown once it is complete",
	"copy":       "Copy the answer to the clipboard",
	"editor":     "Write the message in $EDITOR",
	"quiet":      "Hide tool activity and the thread hint",
	"since":      "Only threads updated within this duration, e.g. 2h or 7d",
	"raw":        "Print plain output instead of the interactive view",
	"word-wrap":  "Wrap rendered markdown at this width",
}

// load reads the configuration and applies flag overrides.
func (rt *runtime) load(cmd *cobra.Command) error {
	if cmd.Annotations[skipConfig] == "true" {
		cfg, _ := config.Load(rt.cfgPath)
		rt.cfg = cfg
		rt.logger = logging.New(rt.logOut, "warn", "text")
		return nil
	}

	cfg, err := config.Load(rt.cfgPath)
	if err != nil {
		return err
	}
	rt.flags.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	rt.cfg = cfg
	rt.logger = logging.New(rt.logOut, cfg.Log.Level, cfg.Log.Format)
	return nil
}

func (o overrides) apply(cfg *config.Config) {
	if o.host != "" {
		cfg.Server.Host = o.host
	}
	if o.port != 0 {
		cfg.Server.Port = o.port
	}
	if o.store != "" {
		cfg.Store.Driver = o.store
	}
	if o.storePath != "" {
		cfg.Store.Path = o.storePath
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}
	if o.wordWrap > 0 {
		cfg.WordWrap = o.wordWrap
	}
}

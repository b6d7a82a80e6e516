package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	ppg "github.com/prisma/ppg-go"
	"github.com/prisma/ppg-go/internal/config"
	"github.com/prisma/ppg-go/internal/ui"
	"github.com/prisma/ppg-go/pkg/logger"
)

// Build-time variables
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// Global flags
var (
	cfgFile  string
	noColor  bool
	quiet    bool
	verbose  bool
	output   string
	dbURL    string
	endpoint string
	useWS    bool
)

// Global instances
var (
	cfg *config.Config
	out *ui.Output
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if out != nil {
			out.Error(err.Error())
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		return 1
	}
	return 0
}

var rootCmd = &cobra.Command{
	Use:   "ppg",
	Short: "Query Prisma Postgres serverless databases from the terminal",
	Long: `ppg runs SQL against a Prisma Postgres serverless endpoint over its
framed query protocol, using either one-shot HTTP requests or a pipelined
WebSocket session.

Get started:
  ppg init
  ppg query "SELECT version()"
  ppg exec "DELETE FROM sessions WHERE expires_at < now()"`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "completion" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil && cmd.Name() != "init" {
			return fmt.Errorf("loading config: %w", err)
		}
		if cfg == nil {
			cfg = config.DefaultConfig()
		}
		applyFlags()

		out = ui.NewOutput(ui.OutputFormat(output), noColor, quiet)
		logger.SetFormat(cfg.Log.Format)
		if verbose {
			logger.SetLevel("debug")
		} else {
			logger.SetLevel(cfg.Log.Level)
		}
		return nil
	},
}

// applyFlags lets command-line flags win over file and env configuration.
func applyFlags() {
	if dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if endpoint != "" {
		cfg.Database.Endpoint = endpoint
	}
	if useWS {
		cfg.Transport.Mode = "ws"
	}
	if output == "" {
		output = cfg.Output.Format
	}
}

// newClient builds a ppg client from the loaded config, prompting for the
// password when the connection string omits it and a terminal is attached.
func newClient() (*ppg.Client, error) {
	connString := cfg.Database.URL
	if connString == "" {
		return nil, fmt.Errorf("no database URL configured; run 'ppg init' or set --url")
	}
	connString, err := ensurePassword(connString)
	if err != nil {
		return nil, err
	}

	opts := []ppg.Option{
		ppg.WithLogger(logger.Default()),
		ppg.WithKeepalive(cfg.Transport.Keepalive),
	}
	if cfg.Database.Endpoint != "" {
		opts = append(opts, ppg.WithEndpoint(cfg.Database.Endpoint))
	}
	return ppg.New(connString, opts...)
}

// ensurePassword prompts for a password when the URL has none.
func ensurePassword(connString string) (string, error) {
	u, err := url.Parse(connString)
	if err != nil || u.User == nil {
		return connString, nil
	}
	if _, ok := u.User.Password(); ok {
		return connString, nil
	}
	if !out.IsInteractive() {
		return connString, nil
	}
	pass, err := ui.Password(fmt.Sprintf("Password for %s:", u.User.Username()))
	if err != nil {
		return "", err
	}
	u.User = url.UserPassword(u.User.Username(), pass)
	return u.String(), nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		info := map[string]string{
			"version":   version,
			"commit":    commit,
			"buildTime": buildTime,
			"goVersion": runtime.Version(),
			"os":        runtime.GOOS,
			"arch":      runtime.GOARCH,
		}
		switch output {
		case "json":
			_ = out.JSON(info)
			return
		case "yaml":
			_ = out.YAML(info)
			return
		}
		out.Printf("ppg %s (%s, built %s, %s %s/%s)",
			version, commit, buildTime, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

var completionCmd = &cobra.Command{
	Use:                   "completion [bash|zsh|fish|powershell]",
	Short:                 "Generate shell completion scripts",
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	Run: func(cmd *cobra.Command, args []string) {
		switch args[0] {
		case "bash":
			_ = cmd.Root().GenBashCompletion(os.Stdout)
		case "zsh":
			_ = cmd.Root().GenZshCompletion(os.Stdout)
		case "fish":
			_ = cmd.Root().GenFishCompletion(os.Stdout, true)
		case "powershell":
			_ = cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.ppg/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbURL, "url", "", "postgres:// connection string (overrides config)")
	rootCmd.PersistentFlags().StringVar(&endpoint, "endpoint", "", "API endpoint override, e.g. http://localhost:8080")
	rootCmd.PersistentFlags().BoolVar(&useWS, "ws", false, "use a WebSocket session instead of HTTP")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "", "output format (table, json, yaml)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-essential output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"table", "json", "yaml"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(completionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(batchCmd)
}

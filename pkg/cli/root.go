// Package cli implements the mallard command-line interface.
package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	mallard "github.com/mallard-db/mallard"
)

var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI and returns a process exit code.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// connectOptions carries the connection flags shared by subcommands.
type connectOptions struct {
	master     string
	agentToken string
	database   string
	metastore  string
	monitor    string
	profile    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &connectOptions{}

	rootCmd := &cobra.Command{
		Use:           "mallard",
		Short:         "Mallard analytics client",
		Long:          "Client for a DuckDB-backed analytics engine: ingestion, lazy transformations, modeling, and charts.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	addConnectionFlags(rootCmd.PersistentFlags(), opts)

	rootCmd.AddCommand(newDemoCmd(opts))
	rootCmd.AddCommand(newRunCmd(opts))
	rootCmd.AddCommand(newAgentTokenCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func addConnectionFlags(fs *pflag.FlagSet, opts *connectOptions) {
	fs.StringVar(&opts.master, "master", "", "Connection target: \"local\" or a remote agent URL")
	fs.StringVar(&opts.agentToken, "agent-token", "", "Shared token for remote agent authentication")
	fs.StringVar(&opts.database, "database", "", "DuckDB database path (default in-memory)")
	fs.StringVar(&opts.metastore, "metastore", "", "SQLite metastore path")
	fs.StringVar(&opts.monitor, "monitor", "", "Monitor UI listen address (e.g. 127.0.0.1:4040)")
	fs.StringVarP(&opts.profile, "profile", "p", "", "Connection profile name")
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
}

// connect opens a session from the resolved flags. Remote targets with no
// token on the flag or in the environment prompt for one when stdin is a
// terminal.
func connect(ctx context.Context, opts *connectOptions) (*mallard.Session, error) {
	token := opts.agentToken
	if token == "" && isRemoteMaster(opts.master) && os.Getenv("MALLARD_AGENT_TOKEN") == "" {
		prompted, err := promptToken()
		if err != nil {
			return nil, err
		}
		token = prompted
	}

	return mallard.Connect(ctx, mallard.Options{
		Master:        opts.master,
		AgentToken:    token,
		DatabasePath:  opts.database,
		MetastorePath: opts.metastore,
		MonitorAddr:   opts.monitor,
		Profile:       opts.profile,
		LogLevel:      opts.logLevel,
	})
}

func isRemoteMaster(master string) bool {
	return strings.HasPrefix(master, "http://") || strings.HasPrefix(master, "https://")
}

func promptToken() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("agent token required: set --agent-token or MALLARD_AGENT_TOKEN")
	}
	fmt.Fprint(os.Stderr, "Agent token: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mallard %s (%s)\n", version, commit)
		},
	}
}

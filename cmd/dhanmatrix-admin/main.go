package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const defaultCommandTimeout = 2 * time.Minute

func main() {
	root := newRootCmd(openEnv)
	if err := root.Execute(); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal failure to shell scripts.
	}
}

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	timeout time.Duration
	open    envOpener
}

func newRootCmd(open envOpener) *cobra.Command {
	opts := &rootOptions{open: open}

	root := &cobra.Command{
		Use:   "dhanmatrix-admin",
		Short: "Operate a DhanMatrix deployment",
		Long: `dhanmatrix-admin manages admin memberships, password credentials, the database
schema and demo data of a DhanMatrix deployment. It reads the same environment
variables (and .env file) as the web server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", defaultCommandTimeout, "abort the command after this long")

	root.AddCommand(
		adminsCmd(opts),
		passwordCmd(opts),
		migrateCmd(opts),
		seedCmd(opts),
	)
	return root
}

// printer writes coloured status lines to a command's output.
type printer struct {
	out io.Writer
}

func newPrinter(cmd *cobra.Command) printer { return printer{out: cmd.OutOrStdout()} }

func (p printer) success(format string, args ...any) {
	color.New(color.FgGreen).Fprint(p.out, "✓ ")
	fmt.Fprintf(p.out, format+"\n", args...)
}

func (p printer) warn(format string, args ...any) {
	color.New(color.FgYellow).Fprint(p.out, "! ")
	fmt.Fprintf(p.out, format+"\n", args...)
}

func (p printer) heading(format string, args ...any) {
	color.New(color.FgCyan, color.Bold).Fprintf(p.out, format+"\n", args...)
}

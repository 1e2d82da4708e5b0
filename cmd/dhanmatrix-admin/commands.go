package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dhanmatrix/dhanmatrix/internal/data"
	"github.com/dhanmatrix/dhanmatrix/internal/devseed"
	"github.com/dhanmatrix/dhanmatrix/internal/domain/model"
)

// withEnv opens the environment under a signal- and timeout-bound context.
func (o *rootOptions) withEnv(cmd *cobra.Command, fn func(ctx context.Context, env *cliEnv) error) (err error) {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	env, err := o.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if env.Close != nil {
			err = errors.Join(err, env.Close())
		}
	}()
	return fn(ctx, env)
}

func adminsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admins",
		Short: "List, promote and demote administrators",
	}
	cmd.AddCommand(adminsListCmd(opts), adminsPromoteCmd(opts), adminsDemoteCmd(opts))
	return cmd
}

func adminsListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every admin membership",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withEnv(cmd, func(ctx context.Context, env *cliEnv) error {
				admins, err := env.Admin.ListAdmins(ctx)
				if err != nil {
					return fmt.Errorf("list admins: %w", err)
				}
				p := newPrinter(cmd)
				if len(admins) == 0 {
					p.warn("No administrators yet. Promote one with: dhanmatrix-admin admins promote <email>")
					return nil
				}
				p.heading("Administrators (%d)", len(admins))
				return writeAdmins(cmd, admins)
			})
		},
	}
}

func writeAdmins(cmd *cobra.Command, admins []*model.AdminMembership) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EMAIL\tUSER ID\tPROMOTED\tBY")
	for _, a := range admins {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", a.Email, a.UserID, a.PromotedAt.UTC().Format(time.RFC3339), a.PromotedBy)
	}
	return tw.Flush()
}

func adminsPromoteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "promote <email>",
		Short: "Grant admin to a registered user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withEnv(cmd, func(ctx context.Context, env *cliEnv) error {
				m, err := env.Admin.PromoteByEmail(ctx, args[0], model.PromotedByCLI)
				if err != nil {
					return fmt.Errorf("promote %s: %w", args[0], err)
				}
				newPrinter(cmd).success("%s (%s) is now an administrator", m.Email, m.UserID)
				return nil
			})
		},
	}
}

func adminsDemoteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "demote <email|user-id>",
		Short: "Revoke a user's admin membership",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withEnv(cmd, func(ctx context.Context, env *cliEnv) error {
				userID, err := resolveUserID(ctx, env.Users, args[0])
				if err != nil {
					return err
				}
				removed, err := env.Admin.Demote(ctx, userID)
				if err != nil {
					return fmt.Errorf("demote %s: %w", args[0], err)
				}
				p := newPrinter(cmd)
				if !removed {
					p.warn("%s was not an administrator", args[0])
					return nil
				}
				p.success("%s is no longer an administrator", args[0])
				return nil
			})
		},
	}
}

// resolveUserID accepts an email or a raw user id.
func resolveUserID(ctx context.Context, users userLookup, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if !strings.Contains(ref, "@") {
		return ref, nil
	}
	profile, err := users.GetByEmail(ctx, strings.ToLower(ref))
	if err != nil {
		if errors.Is(err, data.ErrUserNotFound) {
			return "", fmt.Errorf("no user registered with %s", ref)
		}
		return "", fmt.Errorf("look up %s: %w", ref, err)
	}
	return profile.UserID, nil
}

func passwordCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Manage email/password credentials",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set <email>",
		Short: "Replace the password for an enrolled email (read from stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd)
			if err != nil {
				return err
			}
			return opts.withEnv(cmd, func(ctx context.Context, env *cliEnv) error {
				if err := env.Passwords.SetPassword(ctx, strings.ToLower(strings.TrimSpace(args[0])), password); err != nil {
					return fmt.Errorf("set password: %w", err)
				}
				newPrinter(cmd).success("Password updated for %s", args[0])
				return nil
			})
		},
	})
	return cmd
}

func readPassword(cmd *cobra.Command) (string, error) {
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", errors.New("read password from stdin: no input")
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	return password, nil
}

func seedCmd(opts *rootOptions) *cobra.Command {
	var allowRemote bool
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load demo accounts and investments into a development database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withEnv(cmd, func(ctx context.Context, env *cliEnv) error {
				if !allowRemote && !isLocalHost(env.DBHost) {
					return fmt.Errorf("refusing to seed demo data on remote host %q (pass --allow-remote)", env.DBHost)
				}
				if err := env.Seed(ctx); err != nil {
					return fmt.Errorf("seed: %w", err)
				}
				p := newPrinter(cmd)
				p.success("Demo data loaded")
				p.warn("Every seeded account uses the password %q", devseed.DefaultPassword)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&allowRemote, "allow-remote", false, "permit seeding a non-local database")
	return cmd
}

func isLocalHost(host string) bool {
	switch strings.ToLower(strings.TrimSpace(host)) {
	case "", "localhost", "127.0.0.1", "::1", "postgres", "db":
		return true
	}
	return false
}

func migrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withEnv(cmd, func(ctx context.Context, env *cliEnv) error {
				if err := env.Migrate(ctx); err != nil {
					return fmt.Errorf("run migrations: %w", err)
				}
				newPrinter(cmd).success("Migrations completed")
				return nil
			})
		},
	}
}

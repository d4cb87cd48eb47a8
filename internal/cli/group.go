package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/famshelf/internal/groupcode"
	"github.com/roach88/famshelf/internal/store"
)

// GroupOptions holds flags for the group commands.
type GroupOptions struct {
	*RootOptions
	Database string
}

type groupCreated struct {
	Code string `json:"code"`
}

func (g groupCreated) String() string {
	return fmt.Sprintf("Created group %s\nShare this code with your family to join.", g.Code)
}

type groupInfo struct {
	Code  string `json:"code"`
	Known bool   `json:"known"`
	Items int    `json:"items"`
}

func (g groupInfo) String() string {
	state := "known"
	if !g.Known {
		state = "unknown"
	}
	return fmt.Sprintf("%s: %s, %d item(s)", g.Code, state, g.Items)
}

// NewGroupCommand creates the group command and its subcommands.
func NewGroupCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GroupOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "group",
		Short: "Manage family group codes",
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")

	cmd.AddCommand(&cobra.Command{
		Use:   "new",
		Short: "Issue a new group code",
		Long: `Issue a new eight character group code. A code is never issued twice,
even after every item of its group has been deleted.

Example:
  famshelf group new --db ./family.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGroupNew(opts, cmd)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "show <code>",
		Short:         "Show whether a group is known and how many items it holds",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGroupShow(opts, args[0], cmd)
		},
	})

	return cmd
}

func runGroupNew(opts *GroupOptions, cmd *cobra.Command) error {
	st, err := openStore(opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	code, err := groupcode.Issue(cmd.Context(), st, nil, 0)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to issue group code", err)
	}
	return newFormatter(cmd, opts.RootOptions).Success(groupCreated{Code: code})
}

func runGroupShow(opts *GroupOptions, rawCode string, cmd *cobra.Command) error {
	code, err := groupcode.Parse(rawCode)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid group code", err)
	}

	st, err := openStore(opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	known, err := st.GroupKnown(cmd.Context(), code)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to look up group", err)
	}
	items, err := st.ListItems(cmd.Context(), code)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list items", err)
	}
	return newFormatter(cmd, opts.RootOptions).Success(groupInfo{Code: code, Known: known, Items: len(items)})
}

// openStore opens the database named by --db, falling back to the config.
func openStore(opts *RootOptions, database string) (*store.Store, error) {
	cfg, err := loadConfig(opts, "", database)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

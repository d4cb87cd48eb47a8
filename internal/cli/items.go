package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/famshelf/internal/dispatch"
	"github.com/roach88/famshelf/internal/groupcode"
	"github.com/roach88/famshelf/internal/inventory"
	"github.com/roach88/famshelf/internal/mutation"
	"github.com/roach88/famshelf/internal/store"
)

// ItemsOptions holds flags shared by the items commands.
type ItemsOptions struct {
	*RootOptions
	Database string
	Member   string
}

// itemFlags are the editable item fields.
type itemFlags struct {
	Name        string
	Potency     string
	Company     string
	Location    string
	SubLocation string
	BottleSize  string
	Quantity    int
}

func (f *itemFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Name, "name", "", "item name")
	cmd.Flags().StringVar(&f.Potency, "potency", "", "potency, e.g. 30C")
	cmd.Flags().StringVar(&f.Company, "company", "", "manufacturer")
	cmd.Flags().StringVar(&f.Location, "location", "", "where the item is kept")
	cmd.Flags().StringVar(&f.SubLocation, "sub-location", "", "shelf, box or drawer within the location")
	cmd.Flags().StringVar(&f.BottleSize, "bottle-size", "", "bottle size")
	cmd.Flags().IntVar(&f.Quantity, "quantity", 1, "number of bottles")
}

func (f *itemFlags) item() inventory.Item {
	return inventory.Item{
		Name:        f.Name,
		Potency:     f.Potency,
		Company:     f.Company,
		Location:    f.Location,
		SubLocation: f.SubLocation,
		BottleSize:  f.BottleSize,
		Quantity:    f.Quantity,
	}
}

// patch holds only the flags the user set.
func (f *itemFlags) patch(cmd *cobra.Command) inventory.Patch {
	var p inventory.Patch
	changed := cmd.Flags().Changed
	if changed("name") {
		p.Name = &f.Name
	}
	if changed("potency") {
		p.Potency = &f.Potency
	}
	if changed("company") {
		p.Company = &f.Company
	}
	if changed("location") {
		p.Location = &f.Location
	}
	if changed("sub-location") {
		p.SubLocation = &f.SubLocation
	}
	if changed("bottle-size") {
		p.BottleSize = &f.BottleSize
	}
	if changed("quantity") {
		p.Quantity = &f.Quantity
	}
	return p
}

// NewItemsCommand creates the items command and its subcommands. They edit
// the database directly; members connected to a running server over the
// same file see the changes on their next join.
func NewItemsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ItemsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "items",
		Short: "List and edit a group's inventory",
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.Member, "member", "cli", "member id recorded as the initiator")

	cmd.AddCommand(newItemsListCommand(opts))
	cmd.AddCommand(newItemsAddCommand(opts))
	cmd.AddCommand(newItemsUpdateCommand(opts))
	cmd.AddCommand(newItemsDeleteCommand(opts))

	return cmd
}

func newItemsListCommand(opts *ItemsOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list <group>",
		Short:         "List a group's items by name",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGroup(opts, cmd, args[0], func(ctx context.Context, h *mutation.Handler, group string) error {
				items, err := h.ListItems(ctx, group)
				if err != nil {
					return mutationFailed(opts, cmd, err)
				}
				return newFormatter(cmd, opts.RootOptions).Success(itemList(items))
			})
		},
	}
}

func newItemsAddCommand(opts *ItemsOptions) *cobra.Command {
	var (
		fields     itemFlags
		resolution string
		existing   string
	)

	cmd := &cobra.Command{
		Use:   "add <group>",
		Short: "Add an item",
		Long: `Add an item to a group.

If the group already holds an item with the same potency and an overlapping
name, nothing is written and the duplicate is reported. Run the command
again with --resolution to settle it:

  merge      add the quantity to the existing item (needs --existing)
  keep-both  store the new item as its own row
  skip       drop the new item

Example:
  famshelf items add K7QM2ZXA --name Arnica --potency 30C --company Boiron --location Kitchen
  famshelf items add K7QM2ZXA --name Arnica --potency 30C --company Boiron --location Kitchen \
      --resolution merge --existing 0192...`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGroup(opts, cmd, args[0], func(ctx context.Context, h *mutation.Handler, group string) error {
				origin := mutation.Origin{MemberID: opts.Member}

				var (
					result mutation.AddResult
					err    error
				)
				if resolution == "" {
					result, err = h.AddItem(ctx, group, fields.item(), origin)
				} else {
					res, perr := inventory.ParseResolution(resolution)
					if perr != nil {
						return mutationFailed(opts, cmd, perr)
					}
					result, err = h.ResolveDuplicate(ctx, group, existing, fields.item(), res, origin)
				}
				if err != nil {
					return mutationFailed(opts, cmd, err)
				}

				f := newFormatter(cmd, opts.RootOptions)
				switch {
				case result.Duplicate != nil:
					dup := result.Duplicate
					msg := fmt.Sprintf("%s %s looks like existing item %s (%s %s, qty=%d); rerun with --resolution",
						dup.Candidate.Name, dup.Candidate.Potency, dup.Existing.ID,
						dup.Existing.Name, dup.Existing.Potency, dup.Existing.Quantity)
					if err := f.Error("DUPLICATE_FOUND", msg, dup); err != nil {
						return err
					}
					return NewExitError(ExitFailure, "duplicate found")
				case result.Skipped:
					return f.Success("Skipped.")
				default:
					return f.Success(itemView{*result.Item})
				}
			})
		},
	}

	fields.register(cmd)
	cmd.Flags().StringVar(&resolution, "resolution", "", "settle a duplicate: merge, keep-both or skip")
	cmd.Flags().StringVar(&existing, "existing", "", "id of the existing item to merge into")

	return cmd
}

func newItemsUpdateCommand(opts *ItemsOptions) *cobra.Command {
	var fields itemFlags

	cmd := &cobra.Command{
		Use:   "update <group> <item-id>",
		Short: "Change fields of an item",
		Long: `Change fields of an item. Only the flags given are applied.

Example:
  famshelf items update K7QM2ZXA 0192... --quantity 0`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGroup(opts, cmd, args[0], func(ctx context.Context, h *mutation.Handler, group string) error {
				item, err := h.UpdateItem(ctx, group, args[1], fields.patch(cmd), mutation.Origin{MemberID: opts.Member})
				if err != nil {
					return mutationFailed(opts, cmd, err)
				}
				return newFormatter(cmd, opts.RootOptions).Success(itemView{item})
			})
		},
	}

	fields.register(cmd)
	return cmd
}

type itemDeleted struct {
	ID string `json:"id"`
}

func (d itemDeleted) String() string {
	return fmt.Sprintf("Deleted %s", d.ID)
}

func newItemsDeleteCommand(opts *ItemsOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <group> <item-id>",
		Short:         "Delete an item",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGroup(opts, cmd, args[0], func(ctx context.Context, h *mutation.Handler, group string) error {
				if err := h.DeleteItem(ctx, group, args[1], mutation.Origin{MemberID: opts.Member}); err != nil {
					return mutationFailed(opts, cmd, err)
				}
				return newFormatter(cmd, opts.RootOptions).Success(itemDeleted{ID: args[1]})
			})
		},
	}
}

// withGroup opens the store, checks the group code and runs fn with an
// offline handler. Events are discarded: no connections exist here.
func withGroup(opts *ItemsOptions, cmd *cobra.Command, rawCode string, fn func(context.Context, *mutation.Handler, string) error) error {
	group, err := groupcode.Parse(rawCode)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid group code", err)
	}

	cfg, err := loadConfig(opts.RootOptions, "", opts.Database)
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if cfg.Groups.RequireKnown {
		known, err := st.GroupKnown(ctx, group)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to look up group", err)
		}
		if !known {
			if err := newFormatter(cmd, opts.RootOptions).Error("GROUP_NOT_FOUND", fmt.Sprintf("group %s was never issued", group), nil); err != nil {
				return err
			}
			return NewExitError(ExitFailure, "group not found")
		}
	}

	lanes := dispatch.New()
	defer lanes.Stop()

	return fn(ctx, mutation.New(st, nil, lanes), group)
}

// mutationFailed reports a refused mutation with its error code.
func mutationFailed(opts *ItemsOptions, cmd *cobra.Command, err error) error {
	code := string(inventory.CodeOf(err))
	if code == "" {
		code = "INTERNAL"
	}
	if ferr := newFormatter(cmd, opts.RootOptions).Error(code, err.Error(), nil); ferr != nil {
		return ferr
	}
	return WrapExitError(ExitFailure, "mutation refused", err)
}

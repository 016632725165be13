package inventoryctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ayesh156/roxeleye-crud/internal/client/api"
	"github.com/ayesh156/roxeleye-crud/internal/client/session"
	"github.com/ayesh156/roxeleye-crud/internal/tools/common"
)

type options struct {
	envFile     string
	baseURL     string
	sessionFile string
	timeout     time.Duration
	asJSON      bool

	client *api.Client
	sync   *session.Synchronizer
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "inventoryctl",
		Short:         "Command-line client for the inventory API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.init()
		},
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "path to env file")
	cmd.PersistentFlags().StringVar(&opts.baseURL, "base-url", "", "API base URL (default $INVENTORY_API_URL or http://localhost:5000)")
	cmd.PersistentFlags().StringVar(&opts.sessionFile, "session-file", "", "session file (default <user config dir>/roxeleye/session.json)")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout")
	cmd.PersistentFlags().BoolVar(&opts.asJSON, "json", false, "print raw JSON")

	cmd.AddCommand(
		newRegisterCommand(opts),
		newLoginCommand(opts),
		newLogoutCommand(opts),
		newStatusCommand(opts),
		newWatchCommand(opts),
		newProfileCommand(opts),
		newAvatarCommand(opts),
		newItemsCommand(opts),
		newUsersCommand(opts),
	)
	return cmd
}

func (o *options) init() error {
	if err := common.LoadEnvFile(o.envFile); err != nil {
		return err
	}
	if o.baseURL == "" {
		o.baseURL = os.Getenv("INVENTORY_API_URL")
	}
	if o.baseURL == "" {
		o.baseURL = "http://localhost:5000"
	}
	if o.sessionFile == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return fmt.Errorf("locate config dir: %w", err)
		}
		o.sessionFile = filepath.Join(dir, "roxeleye", "session.json")
	}
	o.sync = session.NewSynchronizer(session.NewFileStore(o.sessionFile), session.NewMemoryCache())
	if err := o.sync.Sync(); err != nil {
		return err
	}
	o.client = api.New(o.baseURL, o.sync)
	return nil
}

func (o *options) ctx(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), o.timeout)
}

func newRegisterCommand(opts *options) *cobra.Command {
	var in api.RegisterInput
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		RunE: func(cmd *cobra.Command, args []string) error {
			if in.Password == "" {
				pw, err := readPassword(cmd, "Password: ")
				if err != nil {
					return err
				}
				in.Password = pw
			}
			ctx, cancel := opts.ctx(cmd)
			defer cancel()
			res, err := opts.client.Register(ctx, in)
			if err != nil {
				return err
			}
			return opts.print(cmd, res.User, func(w io.Writer) { printUser(w, res.User) })
		},
	}
	cmd.Flags().StringVar(&in.Email, "email", "", "account email")
	cmd.Flags().StringVar(&in.Name, "name", "", "display name")
	cmd.Flags().StringVar(&in.Password, "password", "", "password (prompted when omitted)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newLoginCommand(opts *options) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				pw, err := readPassword(cmd, "Password: ")
				if err != nil {
					return err
				}
				password = pw
			}
			ctx, cancel := opts.ctx(cmd)
			defer cancel()
			res, err := opts.client.Login(ctx, email, password)
			if err != nil {
				return err
			}
			return opts.print(cmd, res.User, func(w io.Writer) { printUser(w, res.User) })
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when omitted)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.client.Logout(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

type statusView struct {
	Authenticated bool                `json:"authenticated"`
	ExpiresAt     *time.Time          `json:"expiresAt,omitempty"`
	User          *session.User       `json:"user,omitempty"`
	Permissions   session.Permissions `json:"permissions"`
}

func newStatusCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the local session without contacting the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			v := statusView{
				Authenticated: opts.sync.IsAuthenticated(),
				User:          opts.sync.User(),
				Permissions:   opts.sync.Permissions(),
			}
			if exp, ok := session.TokenExpiry(opts.sync.Token()); ok {
				v.ExpiresAt = &exp
			}
			return opts.print(cmd, v, func(w io.Writer) {
				if !v.Authenticated {
					fmt.Fprintln(w, "not logged in")
					return
				}
				printUser(w, v.User)
				fmt.Fprintf(w, "expires:\t%s\n", v.ExpiresAt.Local().Format(time.RFC1123))
				fmt.Fprintf(w, "can edit items:\t%t\n", v.Permissions.EditItem)
				fmt.Fprintf(w, "can manage users:\t%t\n", v.Permissions.ManageUsers)
			})
		},
	}
}

func newWatchCommand(opts *options) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow session changes made by other processes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				interval = session.DefaultPollInterval
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			sync := session.NewSynchronizer(session.NewFileStore(opts.sessionFile), session.NewMemoryCache(), session.WithPollInterval(interval))
			go func() { _ = sync.Watch(ctx) }()

			out := cmd.OutOrStdout()
			last := "?"
			ticker := time.NewTicker(interval / 2)
			defer ticker.Stop()
			for {
				if cur := describeSession(sync); cur != last {
					fmt.Fprintf(out, "%s %s\n", time.Now().Format(time.TimeOnly), cur)
					last = cur
				}
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", session.DefaultPollInterval, "poll interval")
	return cmd
}

func describeSession(s *session.Synchronizer) string {
	u := s.User()
	if u == nil {
		return "logged out"
	}
	return fmt.Sprintf("logged in as %s (%s)", u.Email, u.Role)
}

func newProfileCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{Use: "profile", Short: "Show or change your profile"}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Fetch your profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.ctx(cmd)
			defer cancel()
			u, err := opts.client.Profile(ctx)
			if err != nil {
				return err
			}
			return opts.print(cmd, u, func(w io.Writer) { printUser(w, u) })
		},
	})

	var name, current, next string
	update := &cobra.Command{
		Use:   "update",
		Short: "Change your name or password",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := api.ProfileInput{CurrentPassword: current, NewPassword: next}
			if cmd.Flags().Changed("name") {
				in.Name = &name
			}
			ctx, cancel := opts.ctx(cmd)
			defer cancel()
			u, err := opts.client.UpdateProfile(ctx, in)
			if err != nil {
				return err
			}
			return opts.print(cmd, u, func(w io.Writer) { printUser(w, u) })
		},
	}
	update.Flags().StringVar(&name, "name", "", "new display name")
	update.Flags().StringVar(&current, "current-password", "", "current password, required with --new-password")
	update.Flags().StringVar(&next, "new-password", "", "new password")
	cmd.AddCommand(update)
	return cmd
}

func newAvatarCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{Use: "avatar", Short: "Manage your avatar"}
	cmd.AddCommand(&cobra.Command{
		Use:   "set <image>",
		Short: "Upload a new avatar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			ctx, cancel := opts.ctx(cmd)
			defer cancel()
			u, err := opts.client.UploadAvatar(ctx, filepath.Base(args[0]), f)
			if err != nil {
				return err
			}
			return opts.print(cmd, u, func(w io.Writer) { printUser(w, u) })
		},
	}, &cobra.Command{
		Use:   "delete",
		Short: "Remove your avatar",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.ctx(cmd)
			defer cancel()
			u, err := opts.client.DeleteAvatar(ctx)
			if err != nil {
				return err
			}
			return opts.print(cmd, u, func(w io.Writer) { printUser(w, u) })
		},
	})
	return cmd
}

type itemFlags struct {
	name        string
	description string
	price       float64
	quantity    int
	image       string
}

func (f *itemFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "item name")
	cmd.Flags().StringVar(&f.description, "description", "", "item description")
	cmd.Flags().Float64Var(&f.price, "price", 0, "unit price")
	cmd.Flags().IntVar(&f.quantity, "quantity", 0, "quantity on hand")
	cmd.Flags().StringVar(&f.image, "image", "", "image file to attach")
}

func (f *itemFlags) input(cmd *cobra.Command) api.ItemInput {
	var in api.ItemInput
	if cmd.Flags().Changed("name") {
		in.Name = &f.name
	}
	if cmd.Flags().Changed("description") {
		in.Description = &f.description
	}
	if cmd.Flags().Changed("price") {
		in.Price = &f.price
	}
	if cmd.Flags().Changed("quantity") {
		in.Quantity = &f.quantity
	}
	return in
}

func newItemsCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{Use: "items", Short: "Work with inventory items"}

	var page, pageSize int
	list := &cobra.Command{
		Use:   "list",
		Short: "List items, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.ctx(cmd)
			defer cancel()
			if cmd.Flags().Changed("page") || cmd.Flags().Changed("page-size") {
				p, err := opts.client.ListItemsPage(ctx, page, pageSize)
				if err != nil {
					return err
				}
				return opts.print(cmd, p, func(w io.Writer) {
					printItems(w, p.Items)
					fmt.Fprintf(w, "page %d of %d (%d items)\n", p.Page, p.TotalPages, p.Total)
				})
			}
			items, err := opts.client.ListItems(ctx)
			if err != nil {
				return err
			}
			return opts.print(cmd, items, func(w io.Writer) { printItems(w, items) })
		},
	}
	list.Flags().IntVar(&page, "page", 1, "page number")
	list.Flags().IntVar(&pageSize, "page-size", 20, "items per page")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := opts.ctx(cmd)
			defer cancel()
			item, err := opts.client.GetItem(ctx, id)
			if err != nil {
				return err
			}
			return opts.print(cmd, item, func(w io.Writer) { printItems(w, []api.Item{*item}) })
		},
	}

	var createFlags itemFlags
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an item",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := createFlags.input(cmd)
			ctx, cancel := opts.ctx(cmd)
			defer cancel()
			var item *api.Item
			var err error
			if createFlags.image != "" {
				f, openErr := os.Open(createFlags.image)
				if openErr != nil {
					return openErr
				}
				defer f.Close()
				item, err = opts.client.CreateItemWithImage(ctx, in, filepath.Base(createFlags.image), f)
			} else {
				item, err = opts.client.CreateItem(ctx, in)
			}
			if err != nil {
				return err
			}
			return opts.print(cmd, item, func(w io.Writer) { printItems(w, []api.Item{*item}) })
		},
	}
	createFlags.bind(create)
	_ = create.MarkFlagRequired("name")

	var updateFlags itemFlags
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Change an item (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			in := updateFlags.input(cmd)
			ctx, cancel := opts.ctx(cmd)
			defer cancel()
			var item *api.Item
			if updateFlags.image != "" {
				f, openErr := os.Open(updateFlags.image)
				if openErr != nil {
					return openErr
				}
				defer f.Close()
				item, err = opts.client.UpdateItemWithImage(ctx, id, in, filepath.Base(updateFlags.image), f)
			} else {
				item, err = opts.client.UpdateItem(ctx, id, in)
			}
			if err != nil {
				return err
			}
			return opts.print(cmd, item, func(w io.Writer) { printItems(w, []api.Item{*item}) })
		},
	}
	updateFlags.bind(update)

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an item (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := opts.ctx(cmd)
			defer cancel()
			msg, err := opts.client.DeleteItem(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}

	delImage := &cobra.Command{
		Use:   "delete-image <id>",
		Short: "Remove an item's image (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := opts.ctx(cmd)
			defer cancel()
			item, err := opts.client.DeleteItemImage(ctx, id)
			if err != nil {
				return err
			}
			return opts.print(cmd, item, func(w io.Writer) { printItems(w, []api.Item{*item}) })
		},
	}

	cmd.AddCommand(list, get, create, update, del, delImage)
	return cmd
}

func newUsersCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{Use: "users", Short: "Manage accounts (admin)"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List accounts",
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx, cancel := opts.ctx(cmd)
				defer cancel()
				users, err := opts.client.ListUsers(ctx)
				if err != nil {
					return err
				}
				return opts.print(cmd, users, func(w io.Writer) { printUsers(w, users) })
			},
		},
		userAction(opts, "get <id>", "Show an account", 1, func(ctx context.Context, id uint, _ []string) (*session.User, error) {
			return opts.client.GetUser(ctx, id)
		}),
		userAction(opts, "role <id> <ADMIN|USER>", "Change an account's role", 2, func(ctx context.Context, id uint, args []string) (*session.User, error) {
			return opts.client.UpdateUserRole(ctx, id, strings.ToUpper(args[1]))
		}),
		userAction(opts, "toggle <id>", "Activate or deactivate an account", 1, func(ctx context.Context, id uint, _ []string) (*session.User, error) {
			return opts.client.ToggleUserStatus(ctx, id)
		}),
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete an account",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				ctx, cancel := opts.ctx(cmd)
				defer cancel()
				if err := opts.client.DeleteUser(ctx, id); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "User deleted successfully")
				return nil
			},
		},
	)
	return cmd
}

func userAction(opts *options, use, short string, nargs int, fn func(context.Context, uint, []string) (*session.User, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := opts.ctx(cmd)
			defer cancel()
			u, err := fn(ctx, id, args)
			if err != nil {
				return err
			}
			return opts.print(cmd, u, func(w io.Writer) { printUser(w, u) })
		},
	}
}

func (o *options) print(cmd *cobra.Command, v any, human func(io.Writer)) error {
	out := cmd.OutOrStdout()
	if o.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	human(tw)
	return tw.Flush()
}

func printUser(w io.Writer, u *session.User) {
	if u == nil {
		return
	}
	fmt.Fprintf(w, "id:\t%d\n", u.ID)
	fmt.Fprintf(w, "email:\t%s\n", u.Email)
	fmt.Fprintf(w, "name:\t%s\n", u.Name)
	fmt.Fprintf(w, "role:\t%s\n", u.Role)
	fmt.Fprintf(w, "active:\t%t\n", u.IsActive)
	if u.Avatar != nil {
		fmt.Fprintf(w, "avatar:\t%s\n", *u.Avatar)
	}
}

func printUsers(w io.Writer, users []session.User) {
	fmt.Fprintln(w, "ID\tEMAIL\tNAME\tROLE\tACTIVE")
	for _, u := range users {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\n", u.ID, u.Email, u.Name, u.Role, u.IsActive)
	}
}

func printItems(w io.Writer, items []api.Item) {
	fmt.Fprintln(w, "ID\tNAME\tPRICE\tQTY\tIMAGE")
	for _, it := range items {
		image := "-"
		if it.Image != nil {
			image = *it.Image
		}
		fmt.Fprintf(w, "%d\t%s\t%.2f\t%d\t%s\n", it.ID, it.Name, it.Price, it.Quantity, image)
	}
}

func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return uint(id), nil
}

func readPassword(cmd *cobra.Command, prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("--password is required when stdin is not a terminal")
	}
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/1of9europe/ViteFait-sub001/internal/app"
	"github.com/1of9europe/ViteFait-sub001/internal/config"
	"github.com/1of9europe/ViteFait-sub001/internal/db"
	"github.com/1of9europe/ViteFait-sub001/internal/domain"
	"github.com/1of9europe/ViteFait-sub001/internal/engine"
	"github.com/1of9europe/ViteFait-sub001/internal/engine/auth"
	"github.com/1of9europe/ViteFait-sub001/internal/migrate"
	"github.com/1of9europe/ViteFait-sub001/internal/repo"
	"github.com/1of9europe/ViteFait-sub001/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "vf",
	Short: "ViteFait mission and escrow CLI",
	Long: `ViteFait runs the core of a three-sided errand marketplace: clients post
missions, assistants execute them, and an escrow payment settles the work.
- Workspace: the .vitefait directory holds the SQLite database; vitefait.yml
  configures currencies and the payment gateway.
- Missions: pending -> accepted -> in_progress -> completed; cancel and
  dispute exit the flow. Every change is recorded in the status history.
- Payments: one pending escrow per mission; intents are created at the
  provider, then confirmed, cancelled or refunded.
- Event log: diary of everything, view with 'vf log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("VITEFAIT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().StringP("user", "u", "", "acting user id")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("user", rootCmd.PersistentFlags().Lookup("user"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(missionCmd())
	rootCmd.AddCommand(paymentCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

// --- config ---

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "Config is the rulebook (vitefait.yml): enabled currencies, the default currency, the payment gateway endpoint, and outbound webhook subscriptions.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default vitefait.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.ResolveConfig(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate workspace config",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := app.ResolveConfig(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

// --- users ---

func userCmd() *cobra.Command {
	u := &cobra.Command{
		Use:   "user",
		Short: "Manage local users",
		Long:  "Users mirror the identity subsystem: an id plus a marketplace role (client or assistant). The engine derives every permission from the role stored here.",
	}
	u.AddCommand(userAddCmd())
	u.AddCommand(userListCmd())
	return u
}

func userAddCmd() *cobra.Command {
	var id, role string
	var verified bool
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if id == "" {
					id = uuid.NewString()
				}
				u := domain.User{
					ID:        id,
					Role:      domain.Role(role),
					Verified:  verified,
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertUser(ctx, u); err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "user id (random UUID if omitted)")
	cmd.Flags().StringVar(&role, "role", "", "role (client or assistant)")
	cmd.Flags().BoolVar(&verified, "verified", false, "identity verified")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func userListCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListUsers(ctx, domain.Role(role))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Role", "Verified", "Created"})
				for _, u := range items {
					tw.AppendRow(table.Row{u.ID, u.Role, u.Verified, u.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "role filter")
	return cmd
}

// --- api keys ---

func apikeyCmd() *cobra.Command {
	a := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
	}
	a.AddCommand(apikeyCreateCmd())
	a.AddCommand(apikeyListCmd())
	a.AddCommand(apikeyRevokeCmd())
	return a
}

func apikeyCreateCmd() *cobra.Command {
	var userID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (printed once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user-id required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if _, err := r.GetUser(ctx, userID); err != nil {
					return err
				}
				raw := make([]byte, 32)
				if _, err := rand.Read(raw); err != nil {
					return err
				}
				secret := "vf_" + hex.EncodeToString(raw)
				key := domain.APIKey{
					ID:        uuid.NewString(),
					UserID:    userID,
					Name:      name,
					KeyHash:   repo.HashAPIKey(secret),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": key.ID, "user_id": key.UserID, "key": secret})
				}
				fmt.Printf("API key %s created for %s\n", key.ID, key.UserID)
				fmt.Printf("Secret (store it now, it is not saved): %s\n", secret)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "owning user id")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx, userID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "filter by user")
	return cmd
}

func apikeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

// --- missions ---

func missionCmd() *cobra.Command {
	m := &cobra.Command{
		Use:   "mission",
		Short: "Manage missions",
		Long:  "Missions flow pending -> accepted -> in_progress -> completed; cancel and dispute exit the flow. Completing a mission settles its pending escrow payment first.",
	}
	m.AddCommand(missionCreateCmd())
	m.AddCommand(missionListCmd())
	m.AddCommand(missionShowCmd())
	m.AddCommand(missionUpdateCmd())
	m.AddCommand(missionDeleteCmd())
	m.AddCommand(missionAcceptCmd())
	m.AddCommand(missionStartCmd())
	m.AddCommand(missionCompleteCmd())
	m.AddCommand(missionCancelCmd())
	m.AddCommand(missionDisputeCmd())
	m.AddCommand(missionHistoryCmd())
	m.AddCommand(missionPaymentsCmd())
	return m
}

type missionFlags struct {
	title, description         string
	pickupAddress              string
	pickupLat, pickupLng       float64
	dropAddress                string
	dropLat, dropLng           float64
	windowStart, windowEnd     string
	price, cashAdvance         string
	currency, category         string
	priority, instructions     string
	requiresCar, requiresTools bool
}

func (f *missionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "mission title")
	cmd.Flags().StringVar(&f.description, "description", "", "description")
	cmd.Flags().StringVar(&f.pickupAddress, "pickup-address", "", "pickup address")
	cmd.Flags().Float64Var(&f.pickupLat, "pickup-lat", 0, "pickup latitude")
	cmd.Flags().Float64Var(&f.pickupLng, "pickup-lng", 0, "pickup longitude")
	cmd.Flags().StringVar(&f.dropAddress, "drop-address", "", "drop-off address")
	cmd.Flags().Float64Var(&f.dropLat, "drop-lat", 0, "drop-off latitude")
	cmd.Flags().Float64Var(&f.dropLng, "drop-lng", 0, "drop-off longitude")
	cmd.Flags().StringVar(&f.windowStart, "window-start", "", "time window start (RFC 3339)")
	cmd.Flags().StringVar(&f.windowEnd, "window-end", "", "time window end (RFC 3339)")
	cmd.Flags().StringVar(&f.price, "price", "0.00", "price estimate (decimal)")
	cmd.Flags().StringVar(&f.cashAdvance, "cash-advance", "", "cash advance (decimal)")
	cmd.Flags().StringVar(&f.currency, "currency", "", "currency code (config default if omitted)")
	cmd.Flags().StringVar(&f.category, "category", "", "category")
	cmd.Flags().StringVar(&f.priority, "priority", "", "priority (low, medium, high, urgent)")
	cmd.Flags().StringVar(&f.instructions, "instructions", "", "instructions for the assistant")
	cmd.Flags().BoolVar(&f.requiresCar, "requires-car", false, "assistant needs a car")
	cmd.Flags().BoolVar(&f.requiresTools, "requires-tools", false, "assistant needs tools")
}

func (f *missionFlags) draft(cmd *cobra.Command, cfg *config.Config) (engine.MissionDraft, error) {
	currency := f.currency
	if currency == "" {
		currency = cfg.Payments.DefaultCurrency
	}
	price, err := domain.ParseAmount(f.price, currency)
	if err != nil {
		return engine.MissionDraft{}, err
	}
	var advance int64
	if f.cashAdvance != "" {
		advance, err = domain.ParseAmount(f.cashAdvance, currency)
		if err != nil {
			return engine.MissionDraft{}, err
		}
	}
	d := engine.MissionDraft{
		Title:           f.title,
		Description:     f.description,
		PickupAddress:   f.pickupAddress,
		PickupLatitude:  f.pickupLat,
		PickupLongitude: f.pickupLng,
		TimeWindowStart: f.windowStart,
		TimeWindowEnd:   f.windowEnd,
		PriceEstimate:   price,
		CashAdvance:     advance,
		Currency:        currency,
		Category:        f.category,
		Priority:        domain.MissionPriority(f.priority),
		Instructions:    f.instructions,
		RequiresCar:     f.requiresCar,
		RequiresTools:   f.requiresTools,
	}
	if f.dropAddress != "" {
		d.DropAddress = &f.dropAddress
	}
	if cmd.Flags().Changed("drop-lat") {
		d.DropLatitude = &f.dropLat
	}
	if cmd.Flags().Changed("drop-lng") {
		d.DropLongitude = &f.dropLng
	}
	return d, nil
}

func missionCreateCmd() *cobra.Command {
	var f missionFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a mission",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				d, err := f.draft(cmd, e.Config)
				if err != nil {
					return err
				}
				m, err := e.CreateMission(ctx, actor, d)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	f.register(cmd)
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("pickup-address")
	_ = cmd.MarkFlagRequired("window-start")
	_ = cmd.MarkFlagRequired("window-end")
	return cmd
}

func missionListCmd() *cobra.Command {
	var f repo.MissionFilters
	var mine bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List missions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var items []domain.Mission
				var err error
				if mine {
					actor, aerr := app.ResolveActor(ctx, e.Repo, viper.GetString("user"))
					if aerr != nil {
						return aerr
					}
					items, err = e.Repo.ListUserMissions(ctx, actor.ID, actor.Role)
				} else {
					items, err = e.Repo.ListMissions(ctx, f)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Assistant", "Estimate", "Window"})
				for _, m := range items {
					assistant := ""
					if m.AssistantID != nil {
						assistant = *m.AssistantID
					}
					tw.AppendRow(table.Row{
						m.ID, m.Title, m.Status, assistant,
						domain.FormatAmount(m.PriceEstimate, m.Currency) + " " + m.Currency,
						m.TimeWindowStart + " .. " + m.TimeWindowEnd,
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Priority, "priority", "", "priority filter")
	cmd.Flags().StringVar(&f.Category, "category", "", "category filter")
	cmd.Flags().StringVar(&f.ClientID, "client-id", "", "client filter")
	cmd.Flags().StringVar(&f.AssistantID, "assistant-id", "", "assistant filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max rows")
	cmd.Flags().BoolVar(&mine, "mine", false, "only missions for --user")
	return cmd
}

func missionShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.Repo.GetMission(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	return cmd
}

func missionUpdateCmd() *cobra.Command {
	var f missionFlags
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a pending mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				d, err := f.draft(cmd, e.Config)
				if err != nil {
					return err
				}
				m, err := e.UpdateMission(ctx, args[0], actor, d)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	f.register(cmd)
	return cmd
}

func missionDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a pending mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				return e.DeleteMission(ctx, args[0], actor)
			})
		},
	}
	return cmd
}

func missionAcceptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accept <id>",
		Short: "Accept a mission (assistant)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				m, err := e.Accept(ctx, args[0], actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	return cmd
}

func missionStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start <id>",
		Short: "Start work on a mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				m, err := e.Start(ctx, args[0], actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	return cmd
}

func missionCompleteCmd() *cobra.Command {
	var finalPrice string
	cmd := &cobra.Command{
		Use:   "complete <id>",
		Short: "Complete a mission, settling its escrow first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				m, err := e.Repo.GetMission(ctx, args[0])
				if err != nil {
					return err
				}
				price, err := domain.ParseAmount(finalPrice, m.Currency)
				if err != nil {
					return err
				}
				m, err = e.Complete(ctx, args[0], actor, price)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&finalPrice, "final-price", "", "final price (decimal)")
	_ = cmd.MarkFlagRequired("final-price")
	return cmd
}

func missionCancelCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a mission, releasing its escrow first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				m, err := e.Cancel(ctx, args[0], actor, reason)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "cancellation reason")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func missionDisputeCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "dispute <id>",
		Short: "Dispute a mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				m, err := e.Dispute(ctx, args[0], actor, reason)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "dispute reason")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func missionHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "Show a mission's status history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListStatusHistory(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"When", "Status", "Actor", "Comment"})
				for _, h := range items {
					actor := "system"
					if h.ActorID != nil {
						actor = *h.ActorID
					}
					tw.AppendRow(table.Row{h.CreatedAt, h.Status, actor, h.Comment})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func missionPaymentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payments <id>",
		Short: "List a mission's payments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListMissionPayments(ctx, args[0])
				if err != nil {
					return err
				}
				return printPayments(items)
			})
		},
	}
	return cmd
}

// --- payments ---

func paymentCmd() *cobra.Command {
	p := &cobra.Command{
		Use:   "payment",
		Short: "Manage escrow payments",
		Long:  "Payments hold the client's money at the provider until the mission completes. At most one pending payment exists per mission; confirm, cancel and refund reconcile the local row with the provider.",
	}
	p.AddCommand(paymentIntentCmd())
	p.AddCommand(paymentShowCmd())
	p.AddCommand(paymentConfirmCmd())
	p.AddCommand(paymentCancelCmd())
	p.AddCommand(paymentRefundCmd())
	p.AddCommand(paymentListCmd())
	return p
}

func paymentIntentCmd() *cobra.Command {
	var missionID, amount, currency string
	cmd := &cobra.Command{
		Use:   "intent",
		Short: "Create an escrow payment intent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				m, err := e.Repo.GetMission(ctx, missionID)
				if err != nil {
					return err
				}
				cur := currency
				if cur == "" {
					cur = m.Currency
				}
				minor, err := domain.ParseAmount(amount, cur)
				if err != nil {
					return err
				}
				p, secret, err := e.CreateIntent(ctx, missionID, actor, minor, cur)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"payment": p, "client_secret": secret})
				}
				fmt.Printf("Payment %s pending (%s %s), intent %s\n", p.ID, domain.FormatAmount(p.Amount, p.Currency), p.Currency, p.ProviderIntentID)
				fmt.Printf("Client secret: %s\n", secret)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&missionID, "mission", "", "mission id")
	cmd.Flags().StringVar(&amount, "amount", "", "amount (decimal)")
	cmd.Flags().StringVar(&currency, "currency", "", "currency (mission currency if omitted)")
	_ = cmd.MarkFlagRequired("mission")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func paymentShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a payment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.Repo.GetPayment(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func paymentConfirmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "confirm <id>",
		Short: "Confirm a payment against the provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				p, err := e.ConfirmPayment(ctx, args[0], actor)
				if err != nil {
					return err
				}
				if p.Status == domain.PaymentPending && !viper.GetBool("json") {
					fmt.Println("provider has not settled the intent yet; retry later")
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func paymentCancelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a pending payment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				p, err := e.CancelPayment(ctx, args[0], actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func paymentRefundCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "refund <id>",
		Short: "Refund a completed payment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				p, err := e.RefundPayment(ctx, args[0], actor, reason)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "refund reason")
	return cmd
}

func paymentListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List payments for --user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				items, err := e.Repo.ListUserPayments(ctx, actor.ID)
				if err != nil {
					return err
				}
				return printPayments(items)
			})
		},
	}
	return cmd
}

func printPayments(items []domain.Payment) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Mission", "Amount", "Status", "Intent", "Created"})
	for _, p := range items {
		tw.AppendRow(table.Row{
			p.ID, p.MissionID,
			domain.FormatAmount(p.Amount, p.Currency) + " " + p.Currency,
			p.Status, p.ProviderIntentID, p.CreatedAt,
		})
	}
	tw.Render()
	return nil
}

// --- event log ---

func logCmd() *cobra.Command {
	l := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: mission transitions, payment settlements, and more.",
	}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind (mission, payment)")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

// --- serve ---

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := app.ResolveConfig(workspace)
			if err != nil {
				return err
			}
			gw, err := app.BuildGateway(cfg)
			if err != nil {
				return err
			}
			e := engine.New(conn, gw, cfg)
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("VITEFAIT_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("VITEFAIT_JWT_SECRET is required for bearer auth")
			}
			if cfg.Gateway.WebhookSecretEnv != "" {
				authCfg.WebhookSecret = os.Getenv(cfg.Gateway.WebhookSecretEnv)
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving ViteFait API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := app.ResolveConfig(workspace)
	if err != nil {
		return err
	}
	gw, err := app.BuildGateway(cfg)
	if err != nil {
		return err
	}
	e := engine.New(conn, gw, cfg)
	return fn(ctx, e)
}

func withActor(ctx context.Context, fn func(context.Context, engine.Engine, auth.Actor) error) error {
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		actor, err := app.ResolveActor(ctx, e.Repo, viper.GetString("user"))
		if err != nil {
			return err
		}
		return fn(ctx, e, actor)
	})
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

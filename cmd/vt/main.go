package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"veritrack/internal/app"
	"veritrack/internal/config"
	"veritrack/internal/db"
	"veritrack/internal/domain"
	"veritrack/internal/engine"
	"veritrack/internal/migrate"
	"veritrack/internal/repo"
	"veritrack/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "vt",
	Short: "Veritrack CLI",
	Long: `Veritrack tracks accelerator indicators and verifies what entrepreneurs report.
Core concepts:
- Tenant: one accelerator's data, isolated in the workspace database.
- Programmes: cohorts with a fixed duration in months; indicators are scheduled per month.
- Indicators: success indicators (live in a portfolio, carry a target) and compliance indicators (live in a cluster, carry an acceptance value).
- Tasks: one indicator instance for one entrepreneur in one period; pending -> submitted -> completed, or back to needs_revision.
- Submissions: the reported value plus evidence; each one walks the verification chain.
- Reviews: verifier work items. Level 1 then optionally level 2; a rejection at any level sends the task back.
- Event log: diary of changes, view with 'vt log tail'.`,
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
	viper.SetEnvPrefix("VERITRACK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("tenant", "", "tenant id (overrides config default)")
	rootCmd.PersistentFlags().Bool("force", false, "skip confirmation on destructive commands")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("tenant", rootCmd.PersistentFlags().Lookup("tenant"))
	_ = viper.BindPFlag("force", rootCmd.PersistentFlags().Lookup("force"))
}

func registerCommands() {
	rootCmd.AddCommand(tenantCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(programmeCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(indicatorCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(submissionCmd())
	rootCmd.AddCommand(reviewCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func tenantCmd() *cobra.Command {
	t := &cobra.Command{Use: "tenant", Short: "Manage tenants"}
	t.AddCommand(tenantInitCmd())
	t.AddCommand(tenantListCmd())
	t.AddCommand(tenantShowCmd())
	t.AddCommand(tenantUseCmd())
	return t
}

func tenantInitCmd() *cobra.Command {
	var id, name string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialise a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg := config.Default(id)
			e := engine.New(conn, cfg)
			t, err := e.InitTenant(cmd.Context(), id, name, viper.GetString("actor-id"))
			if err != nil {
				return err
			}
			return printJSONOrTable(t)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "tenant id")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func tenantListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListTenants(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func tenantShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			target := viper.GetString("tenant")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if target == "" {
					target = e.Config.Tenant.ID
				}
				t, err := e.Repo.GetTenant(ctx, target)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func tenantUseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "use <id>",
		Short: "Set current tenant for this workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID := strings.TrimSpace(args[0])
			if tenantID == "" {
				return fmt.Errorf("tenant id is required")
			}
			workspace := viper.GetString("workspace")
			if err := setEnvValue(filepath.Join(workspace, ".env"), "VERITRACK_DEFAULT_TENANT", tenantID); err != nil {
				return err
			}
			fmt.Printf("Set VERITRACK_DEFAULT_TENANT=%s in %s/.env\n", tenantID, workspace)
			return nil
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect tenant config",
		Long:  "Config is the rulebook (stored in DB): tenant id, verification window, role catalog, and notification hooks. Import from veritrack.yml if desired.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configImportCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show tenant config stored in DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func configImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import tenant config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(filePath)
			if err != nil {
				return err
			}
			cfg, err := config.FromYAML(data)
			if err != nil {
				return err
			}
			tenantID := cfg.Tenant.ID
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if tenantID == "" {
					tenantID = e.Config.Tenant.ID
				}
				if err := e.Repo.UpsertTenantConfig(ctx, tenantID, cfg); err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate stored config",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Config.Validate()
			})
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

func statusCmd() *cobra.Command {
	var tenantID string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show tenant status",
		Long:  "See the scoreboard for your tenant: task counts per status and open reviews.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tenantID = strings.TrimSpace(tenantID)
				if tenantID == "" {
					tenantID = e.Config.Tenant.ID
				}
				t, err := e.Repo.GetTenant(ctx, tenantID)
				if err != nil {
					return err
				}
				counts, err := e.Repo.CountTasksByStatus(ctx, tenantID)
				if err != nil {
					return err
				}
				open, err := e.Repo.ListReviewTasks(ctx, repo.ReviewTaskFilters{OpenOnly: true})
				if err != nil {
					return err
				}
				out := map[string]any{
					"tenant_id":    t.ID,
					"name":         t.Name,
					"task_counts":  counts,
					"open_reviews": len(open),
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("Tenant: %s (%s)\n", t.ID, t.Name)
				fmt.Printf("Open reviews: %d\n", len(open))
				fmt.Println("Tasks:")
				for status, c := range counts {
					fmt.Printf("  %s: %d\n", status, c)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id")
	return cmd
}

func programmeCmd() *cobra.Command {
	p := &cobra.Command{
		Use:   "programme",
		Short: "Manage programmes",
		Long:  "Programmes are cohorts with a fixed duration between 1 and 60 months. Indicators are scheduled against specific programme months.",
	}
	p.AddCommand(programmeCreateCmd())
	p.AddCommand(programmeListCmd())
	return p
}

func programmeCreateCmd() *cobra.Command {
	var name string
	var months int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create programme",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreateProgramme(ctx, e.Config.Tenant.ID, name, months, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "programme name")
	cmd.Flags().IntVar(&months, "duration-months", 12, "duration in months (1-60)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func programmeListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List programmes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListProgrammes(ctx, e.Config.Tenant.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func userCmd() *cobra.Command {
	u := &cobra.Command{Use: "user", Short: "Manage users"}
	u.AddCommand(userCreateCmd())
	u.AddCommand(userRevokeRoleCmd())
	return u
}

func userRevokeRoleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke-role <user-id> <role-id>",
		Short: "Remove a role from a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RevokeRole(ctx, e.Config.Tenant.ID, args[0], args[1], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func userCreateCmd() *cobra.Command {
	var id, name, email string
	var roles []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.CreateUser(ctx, e.Config.Tenant.ID, id, name, email, roles, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "user id")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringArrayVar(&roles, "role", []string{}, "role id from the catalog (repeatable)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func indicatorCmd() *cobra.Command {
	ind := &cobra.Command{
		Use:   "indicator",
		Short: "Manage indicators",
		Long:  "Indicators define what gets measured. Success indicators live in a portfolio and carry a target value; compliance indicators live in a cluster and carry an acceptance value. Verifier roles decide who reviews submissions.",
	}
	ind.AddCommand(indicatorCreateCmd())
	ind.AddCommand(indicatorListCmd())
	ind.AddCommand(indicatorShowCmd())
	ind.AddCommand(indicatorDeleteCmd())
	ind.AddCommand(indicatorScheduleCmd())
	return ind
}

func indicatorCreateCmd() *cobra.Command {
	var opts engine.IndicatorCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an indicator",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if opts.TenantID == "" {
					opts.TenantID = e.Config.Tenant.ID
				}
				ind, err := e.CreateIndicator(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(ind)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "indicator id (optional)")
	cmd.Flags().StringVar(&opts.Kind, "kind", "success", "indicator kind (success, compliance)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "name")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.PortfolioID, "portfolio", "", "portfolio id (success indicators)")
	cmd.Flags().StringVar(&opts.ClusterID, "cluster", "", "cluster id (compliance indicators)")
	cmd.Flags().StringVar(&opts.ResponseFormat, "response-format", "numeric", "response format (numeric, percentage, monetary, boolean)")
	cmd.Flags().StringVar(&opts.TargetValue, "target", "", "target value")
	cmd.Flags().StringVar(&opts.AcceptanceValue, "acceptance", "", "acceptance value")
	cmd.Flags().StringVar(&opts.Verifier1RoleID, "verifier-1-role", "", "level 1 verifier role id")
	cmd.Flags().StringVar(&opts.Verifier2RoleID, "verifier-2-role", "", "level 2 verifier role id")
	cmd.Flags().BoolVar(&opts.RequiresEvidence, "requires-evidence", false, "require evidence attachments on submissions")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func indicatorListCmd() *cobra.Command {
	var f repo.IndicatorFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List indicators",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if f.TenantID == "" {
					f.TenantID = e.Config.Tenant.ID
				}
				items, err := e.Repo.ListIndicators(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Kind", "Name", "Scope", "Format", "Verifiers"})
				for _, ind := range items {
					scope := ""
					if ind.PortfolioID != nil {
						scope = "portfolio:" + *ind.PortfolioID
					} else if ind.ClusterID != nil {
						scope = "cluster:" + *ind.ClusterID
					}
					verifiers := ""
					if ind.Verifier1RoleID != nil {
						verifiers = *ind.Verifier1RoleID
					}
					if ind.Verifier2RoleID != nil {
						verifiers += " -> " + *ind.Verifier2RoleID
					}
					tw.AppendRow(table.Row{ind.ID, ind.Kind, ind.Name, scope, ind.ResponseFormat, verifiers})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Kind, "kind", "", "kind filter")
	cmd.Flags().StringVar(&f.PortfolioID, "portfolio", "", "portfolio filter")
	cmd.Flags().StringVar(&f.ClusterID, "cluster", "", "cluster filter")
	cmd.Flags().BoolVar(&f.IncludeDeleted, "deleted", false, "include deleted indicators")
	return cmd
}

func indicatorShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an indicator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ind, err := e.Repo.GetIndicator(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(ind)
			})
		},
	}
	return cmd
}

func indicatorDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an indicator and its open tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if !viper.GetBool("force") {
				return fmt.Errorf("deleting indicator %s removes its open tasks; re-run with --force", id)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteIndicator(ctx, e.Config.Tenant.ID, id, viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func indicatorScheduleCmd() *cobra.Command {
	var programmeID string
	var month int
	cmd := &cobra.Command{
		Use:   "schedule <id>",
		Short: "Schedule an indicator in a programme month",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.AttachProgrammeMonth(ctx, e.Config.Tenant.ID, id, programmeID, month, viper.GetString("actor-id"))
			})
		},
	}
	cmd.Flags().StringVar(&programmeID, "programme", "", "programme id")
	cmd.Flags().IntVar(&month, "month", 1, "programme month (1-based)")
	_ = cmd.MarkFlagRequired("programme")
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage indicator tasks",
		Long:  "Tasks are one indicator instance for one entrepreneur in one period. They flow pending -> submitted -> completed; a rejected verification sends them to needs_revision. Overdue is computed from the due date, never stored.",
	}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskGetCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if opts.TenantID == "" {
					opts.TenantID = e.Config.Tenant.ID
				}
				t, err := e.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "task id (optional, deterministic UUID if omitted)")
	cmd.Flags().StringVar(&opts.IndicatorID, "indicator", "", "indicator id")
	cmd.Flags().StringVar(&opts.ProgrammeID, "programme", "", "programme id")
	cmd.Flags().StringVar(&opts.EntrepreneurID, "entrepreneur", "", "entrepreneur user id")
	cmd.Flags().StringVar(&opts.Period, "period", "", "reporting period, e.g. 2026-08")
	cmd.Flags().StringVar(&opts.DueDate, "due", "", "due date (RFC3339)")
	_ = cmd.MarkFlagRequired("indicator")
	_ = cmd.MarkFlagRequired("entrepreneur")
	_ = cmd.MarkFlagRequired("period")
	return cmd
}

func taskListCmd() *cobra.Command {
	var f repo.TaskFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if f.TenantID == "" {
					f.TenantID = e.Config.Tenant.ID
				}
				tasks, err := e.Repo.ListTasks(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				now := time.Now()
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Indicator", "Entrepreneur", "Period", "Status"})
				for _, t := range tasks {
					tw.AppendRow(table.Row{t.ID, t.IndicatorID, t.EntrepreneurID, t.Period, t.EffectiveStatus(now)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.IndicatorID, "indicator", "", "indicator filter")
	cmd.Flags().StringVar(&f.ProgrammeID, "programme", "", "programme filter")
	cmd.Flags().StringVar(&f.EntrepreneurID, "entrepreneur", "", "entrepreneur filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max rows")
	return cmd
}

func taskGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.Repo.GetTask(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func submissionCmd() *cobra.Command {
	sub := &cobra.Command{
		Use:   "submission",
		Short: "Manage submissions",
		Long:  "Submissions report a value for a task. Each submission walks the verification chain configured on the indicator, or is approved outright when no verifiers are set.",
	}
	sub.AddCommand(submissionCreateCmd())
	sub.AddCommand(submissionListCmd())
	sub.AddCommand(submissionGetCmd())
	return sub
}

func submissionCreateCmd() *cobra.Command {
	var opts engine.SubmissionCreateOptions
	var attachments []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Submit a value for a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			for _, a := range attachments {
				name, url, ok := strings.Cut(a, "=")
				if !ok {
					return fmt.Errorf("attachment must be name=url, got %q", a)
				}
				opts.Attachments = append(opts.Attachments, engine.AttachmentInput{FileName: name, URL: url})
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.CreateSubmission(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&opts.TaskID, "task", "", "task id")
	cmd.Flags().StringVar(&opts.Value, "value", "", "reported value")
	cmd.Flags().StringVar(&opts.Comment, "comment", "", "comment")
	cmd.Flags().StringArrayVar(&attachments, "attachment", []string{}, "evidence attachment as name=url (repeatable)")
	_ = cmd.MarkFlagRequired("task")
	_ = cmd.MarkFlagRequired("value")
	return cmd
}

func submissionListCmd() *cobra.Command {
	var taskID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List submissions for a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListSubmissionsByTask(ctx, taskID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&taskID, "task", "", "task id")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

func submissionGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get submission with its reviews",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.Repo.GetSubmission(ctx, id)
				if err != nil {
					return err
				}
				reviews, err := e.Repo.ListReviewsBySubmission(ctx, id)
				if err != nil {
					return err
				}
				atts, err := e.Repo.ListAttachments(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"submission":  s,
					"reviews":     reviews,
					"attachments": atts,
				})
			})
		},
	}
	return cmd
}

func reviewCmd() *cobra.Command {
	rev := &cobra.Command{
		Use:   "review",
		Short: "Work the verification queue",
		Long:  "Reviews are verifier work items. Level 1 goes to the indicator's first verifier role; approval escalates to level 2 when configured. A rejection at any level rejects the submission and sends the task back for revision.",
	}
	rev.AddCommand(reviewListCmd())
	rev.AddCommand(reviewApproveCmd())
	rev.AddCommand(reviewRejectCmd())
	return rev
}

func reviewListCmd() *cobra.Command {
	var f repo.ReviewTaskFilters
	var mine bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List review tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			if mine {
				f.VerifierUserID = viper.GetString("actor-id")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListReviewTasks(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Submission", "Level", "Verifier", "Due", "Done"})
				for _, rt := range items {
					done := ""
					if rt.CompletedAt != nil {
						done = *rt.CompletedAt
					}
					tw.AppendRow(table.Row{rt.ID, rt.SubmissionID, rt.Level, rt.VerifierUserID, rt.DueDate, done})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.VerifierUserID, "verifier", "", "verifier user id filter")
	cmd.Flags().StringVar(&f.SubmissionID, "submission", "", "submission filter")
	cmd.Flags().BoolVar(&f.OpenOnly, "open", false, "only open review tasks")
	cmd.Flags().BoolVar(&mine, "mine", false, "reviews assigned to --actor-id")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max rows")
	return cmd
}

func reviewApproveCmd() *cobra.Command {
	var comment string
	cmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a review task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.ApproveReview(ctx, engine.ReviewOptions{
					ReviewTaskID: args[0],
					ReviewerID:   viper.GetString("actor-id"),
					Comment:      comment,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "review comment")
	return cmd
}

func reviewRejectCmd() *cobra.Command {
	var comment string
	cmd := &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a review task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.RejectReview(ctx, engine.ReviewOptions{
					ReviewTaskID: args[0],
					ReviewerID:   viper.GetString("actor-id"),
					Comment:      comment,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "review comment")
	return cmd
}

func apikeyCmd() *cobra.Command {
	k := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	k.AddCommand(apikeyCreateCmd())
	k.AddCommand(apikeyListCmd())
	k.AddCommand(apikeyRevokeCmd())
	return k
}

func apikeyCreateCmd() *cobra.Command {
	var actor, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actor == "" {
				actor = viper.GetString("actor-id")
			}
			key := "vtk_" + strings.ReplaceAll(uuid.NewString(), "-", "")
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				rec := domain.APIKey{
					ID:        uuid.NewString(),
					ActorID:   actor,
					Name:      name,
					KeyHash:   repo.HashAPIKey(key),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertAPIKey(ctx, nil, rec); err != nil {
					return err
				}
				// The raw key is shown once and only the hash is stored.
				return printJSONOrTable(map[string]any{"id": rec.ID, "actor_id": actor, "key": key})
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "actor id (defaults to --actor-id)")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "filter by actor id")
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

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: submissions, verifications, task transitions, and more.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, e.Config.Tenant.ID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			_, cfg, err := app.ResolveTenantAndConfig(cmd.Context(), workspace, viper.GetString("tenant"), viper.GetString("actor-id"), r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("VERITRACK_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("VERITRACK_JWT_SECRET is required for bearer auth")
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
			fmt.Printf("Serving Veritrack API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
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
	r := repo.Repo{DB: conn}
	_, cfg, err := app.ResolveTenantAndConfig(ctx, workspace, viper.GetString("tenant"), viper.GetString("actor-id"), r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
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
	r := repo.Repo{DB: conn}
	return fn(ctx, r)
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

func setEnvValue(path, key, value string) error {
	var lines []string
	seen := false
	f, err := os.Open(path)
	if err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, key+"=") {
				lines = append(lines, fmt.Sprintf("%s=%s", key, value))
				seen = true
			} else {
				lines = append(lines, line)
			}
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return err
		}
		f.Close()
	} else if !os.IsNotExist(err) {
		return err
	}
	if !seen {
		lines = append(lines, fmt.Sprintf("%s=%s", key, value))
	}
	content := strings.Join(lines, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

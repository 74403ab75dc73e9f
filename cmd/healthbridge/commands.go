package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/wondertwin-ai/healthbridge/internal/bridge"
	"github.com/wondertwin-ai/healthbridge/internal/config"
	"github.com/wondertwin-ai/healthbridge/internal/healthkit"
	"github.com/wondertwin-ai/healthbridge/internal/schema"
)

// ---------------------------------------------------------------------------
// healthbridge status
// ---------------------------------------------------------------------------

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Health check the twin and show the companion app",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := a.client()
			w := cmd.OutOrStdout()

			health := "healthy"
			if ok, _ := c.Health(ctx); !ok {
				health = "unreachable"
			}
			fmt.Fprintln(w)
			fmt.Fprintf(w, "  %-12s %s\n", "TWIN", c.BaseURL())
			fmt.Fprintf(w, "  %-12s %s\n", "HEALTH", health)
			if health != "healthy" {
				fmt.Fprintln(w)
				return nil
			}

			info, err := c.Device(ctx)
			if err != nil {
				return err
			}
			st, err := c.CheckAppStatus(ctx)
			if err != nil {
				return err
			}
			installed := "not installed"
			if st.IsInstalled {
				installed = "installed"
				if st.Version != nil {
					installed += " (" + *st.Version + ")"
				}
			}
			fmt.Fprintf(w, "  %-12s %s\n", "PROFILE", info.Profile)
			fmt.Fprintf(w, "  %-12s %s\n", "PACKAGES", fmt.Sprint(len(info.Packages)))
			fmt.Fprintf(w, "  %-12s %s %s\n", "COMPANION", info.Companion.Package, installed)
			fmt.Fprintln(w)
			return nil
		},
	}
}

// ---------------------------------------------------------------------------
// healthbridge authorize | read | open
// ---------------------------------------------------------------------------

func (a *app) authorizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "authorize [scope...]",
		Short: "Request Health Kit authorization",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := a.client().RequestAuthorization(cmd.Context(), args)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), env)
		},
	}
}

func (a *app) readCmd() *cobra.Command {
	var (
		since time.Duration
		limit int
	)
	cmd := &cobra.Command{
		Use:   "read <type>",
		Short: "Read health samples of one type",
		Long:  "Read samples of heartrate, steps or sleep. Other types return no samples.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := bridge.ReadOptions{DataType: args[0]}
			if since > 0 {
				end := time.Now()
				start := end.Add(-since).UnixMilli()
				endMs := end.UnixMilli()
				opts.StartTime, opts.EndTime = &start, &endMs
			}
			if cmd.Flags().Changed("limit") {
				opts.Limit = &limit
			}
			res, err := a.client().ReadData(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "read window ending now (0 reads from the epoch)")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of samples")
	return cmd
}

func (a *app) openCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open",
		Short: "Open the companion app or its store listing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := a.client().OpenApp(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), env)
		},
	}
}

// ---------------------------------------------------------------------------
// healthbridge summary
// ---------------------------------------------------------------------------

func (a *app) summaryCmd() *cobra.Command {
	var instructions bool
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Aggregate heart rate, steps and sleep from the twin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := healthkit.New(healthkit.Options{
				Bridge:    a.client(),
				Companion: a.cfg.Companion,
			})
			if instructions {
				return printJSON(cmd.OutOrStdout(), svc.ManualExportInstructions())
			}
			if res := svc.Initialize(cmd.Context()); !res.Success {
				return errors.New(res.Message)
			}
			sum, err := svc.Summary(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), sum)
		},
	}
	cmd.Flags().BoolVar(&instructions, "export-instructions", false, "print manual export steps instead")
	return cmd
}

// ---------------------------------------------------------------------------
// healthbridge reset | seed | inspect | wait
// ---------------------------------------------------------------------------

func (a *app) resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reset the twin's state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client().Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "  ✓ reset")
			return nil
		},
	}
}

func (a *app) seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file>",
		Short: "Load a JSON or YAML state file into the twin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client().Seed(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  ✓ seeded from %s\n", args[0])
			return nil
		},
	}
}

var inspectResources = []string{"state", "device", "launches", "requests", "faults", "config", "time"}

func (a *app) inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "inspect [resource]",
		Short:     "Query the twin's internal state",
		Long:      "Resources: " + strings.Join(inspectResources, ", ") + ". Defaults to state.",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: inspectResources,
		RunE: func(cmd *cobra.Command, args []string) error {
			resource := "state"
			if len(args) == 1 {
				resource = args[0]
			}
			raw, err := a.client().Admin(cmd.Context(), resource)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), raw)
		},
	}
}

func (a *app) waitCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "wait",
		Short: "Block until the twin reports ready",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client().WaitReady(cmd.Context(), timeout); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "  ✓ ready")
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "maximum time to wait")
	return cmd
}

// ---------------------------------------------------------------------------
// healthbridge schema | config
// ---------------------------------------------------------------------------

func (a *app) schemaCmd() *cobra.Command {
	var check string
	cmd := &cobra.Command{
		Use:   "schema [name]",
		Short: "Print or check against a bridge document schema",
		Long:  "Schemas: " + strings.Join(schema.Names(), ", ") + ". Without a name the schema names are listed.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if len(args) == 0 {
				for _, n := range schema.Names() {
					fmt.Fprintln(w, n)
				}
				return nil
			}
			if check != "" {
				doc, err := os.ReadFile(check)
				if err != nil {
					return err
				}
				if err := schema.Validate(args[0], doc); err != nil {
					return err
				}
				fmt.Fprintf(w, "  ✓ %s is a valid %s\n", check, args[0])
				return nil
			}
			out, err := schema.Generate(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(w, string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&check, "validate", "", "validate this JSON file instead of printing the schema")
	return cmd
}

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init [path]",
		Short: "Write the effective configuration to a file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultConfigFile
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := config.Save(a.cfg, path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  ✓ wrote %s\n", path)
			return nil
		},
	})
	return cmd
}

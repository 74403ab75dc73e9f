// healthbridge runs the Health Kit bridge twin and talks to a running one.
//
// Usage:
//
//	healthbridge serve                  Start the twin on :4330
//	healthbridge status                 Health check the twin and show the companion app
//	healthbridge authorize [scope...]   Request authorization (default scopes when empty)
//	healthbridge read <type>            Read heartrate, steps or sleep samples
//	healthbridge open                   Open the companion app or its store listing
//	healthbridge summary                Aggregate heart rate, steps and sleep
//	healthbridge reset                  Reset the twin's state
//	healthbridge seed <file>            POST a JSON or YAML state file to /admin/state
//	healthbridge inspect [res]          Query state, device, launches, requests, faults, config or time
//	healthbridge schema [name]          Print the JSON Schema of a bridge document
//	healthbridge wait                   Block until the twin reports ready
//	healthbridge config init [path]     Write a config file with the current settings
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/wondertwin-ai/healthbridge/internal/client"
	"github.com/wondertwin-ai/healthbridge/internal/config"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

// app carries the loaded configuration to the subcommands.
type app struct {
	configPath string
	v          *viper.Viper
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:   "healthbridge",
		Short: "Health Kit bridge twin",
		Long: `healthbridge serves a simulated Huawei Health Kit bridge over HTTP and
provides client commands for its bridge operations and admin control plane.

Configuration is read from healthbridge.yaml in the working directory or
~/.healthbridge, from HEALTHBRIDGE_* environment variables and from flags.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFrom(a.v, a.configPath, cmd.Flags())
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (default: search . and ~/.healthbridge)")
	root.PersistentFlags().String("url", "", "base URL of a running twin")

	root.AddCommand(
		a.serveCmd(),
		a.statusCmd(),
		a.authorizeCmd(),
		a.readCmd(),
		a.openCmd(),
		a.summaryCmd(),
		a.resetCmd(),
		a.seedCmd(),
		a.inspectCmd(),
		a.schemaCmd(),
		a.waitCmd(),
		a.configCmd(),
	)
	return root
}

func (a *app) client() *client.Client {
	return client.New(a.cfg.Client.URL, client.WithTimeout(a.cfg.Client.Timeout))
}

func printJSON(w io.Writer, v any) error {
	var data []byte
	var err error
	switch raw := v.(type) {
	case json.RawMessage:
		var buf any
		if err = json.Unmarshal(raw, &buf); err != nil {
			_, err = fmt.Fprintln(w, string(raw))
			return err
		}
		data, err = json.MarshalIndent(buf, "", "  ")
	default:
		data, err = json.MarshalIndent(v, "", "  ")
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

package commands

import (
	"fmt"
	"io"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/quilldev/kurisu/internal/appctx"
	"github.com/quilldev/kurisu/internal/config"
	"github.com/quilldev/kurisu/internal/output"
)

// NewConfigCmd creates the config command.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
		Long: `Inspect kurisu configuration.

Configuration is loaded from multiple sources with the following precedence:
  flags > env > local > global > system > defaults

Config locations:
  - System: /etc/kurisu/config.yaml
  - Global: ~/.config/kurisu/config.yaml
  - Local:  .kurisu/config.yaml (cannot set credentials or upstream URLs)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long:  "Display the current effective configuration with source information.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd)
		},
	})

	return cmd
}

// ConfigValue is one effective setting and where it came from.
type ConfigValue struct {
	Value  string `json:"value"`
	Source string `json:"source"`
}

type configView map[string]ConfigValue

func runConfigShow(cmd *cobra.Command) error {
	app := appctx.FromContext(cmd.Context())
	return app.OK(effectiveConfig(app.Config), output.WithSummary("Effective configuration"))
}

func effectiveConfig(cfg *config.Config) configView {
	secret := func(v string) string {
		if v == "" {
			return "(unset)"
		}
		return "(set)"
	}

	values := map[string]string{
		"api_key":             secret(cfg.APIKey),
		"token":               secret(cfg.Token),
		"platform_url":        cfg.PlatformURL,
		"data_dragon_url":     cfg.DataDragonURL,
		"cache_dir":           cfg.CacheDir,
		"summoner_ttl":        cfg.SummonerTTL.String(),
		"mastery_ttl":         cfg.MasteryTTL.String(),
		"version_ttl":         cfg.VersionTTL.String(),
		"cache_capacity":      fmt.Sprintf("%d", cfg.CacheCapacity),
		"dedupe":              fmt.Sprintf("%t", cfg.Dedupe),
		"interaction_timeout": cfg.InteractionTimeout.String(),
		"sweep_interval":      cfg.SweepInterval.String(),
		"bundle_interval":     cfg.BundleInterval.String(),
		"bundle_schedule":     cfg.BundleSchedule,
		"metrics_addr":        cfg.MetricsAddr,
		"format":              cfg.Format,
		"log_level":           cfg.LogLevel,
		"log_format":          cfg.LogFormat,
	}

	view := make(configView, len(values))
	for k, v := range values {
		view[k] = ConfigValue{Value: v, Source: cfg.Source(k)}
	}
	return view
}

func (v configView) RenderText(w io.Writer) error {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Key", "Value", "Source"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, k := range keys {
		table.Append([]string{k, v[k].Value, v[k].Source})
	}
	table.Render()
	return nil
}

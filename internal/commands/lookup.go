package commands

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/quilldev/kurisu/internal/appctx"
	"github.com/quilldev/kurisu/internal/completion"
	"github.com/quilldev/kurisu/internal/output"
	"github.com/quilldev/kurisu/internal/riot"
)

var printer = message.NewPrinter(language.English)

// NewMasteryCmd creates the mastery command.
func NewMasteryCmd() *cobra.Command {
	var (
		top    int
		sorted bool
	)

	cmd := &cobra.Command{
		Use:   "mastery <summoner-name>",
		Short: "Show a summoner's champion mastery",
		Long: `Resolve a summoner by display name and list their champion mastery.

Entries are shown in the order the game API returns them unless --sort is
given. Names are matched exactly as typed.`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.NewCompleter(nil).SummonerNameCompletion(),
		RunE: func(cmd *cobra.Command, args []string) error {
			if top < 0 {
				return output.ErrUsage("--top must not be negative")
			}
			app := appctx.FromContext(cmd.Context())
			if err := app.Config.Validate(false); err != nil {
				return err
			}

			profile, err := app.Resolver.ResolveProfile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			rememberSummoner(app, args[0], profile.Summoner)

			entries := profile.Masteries
			if sorted {
				entries = riot.SortByPoints(entries)
			}
			total := len(entries)
			if top > 0 && top < len(entries) {
				entries = entries[:top]
			}

			summary := printer.Sprintf("%d champions with mastery for %s", total, profile.Summoner.Name)
			return app.OK(masteryTable(entries),
				output.WithSummary(summary),
				output.WithMeta("summoner_id", profile.Summoner.ID),
			)
		},
	}

	cmd.Flags().IntVarP(&top, "top", "n", 10, "Show only the first N entries (0 for all)")
	cmd.Flags().BoolVar(&sorted, "sort", false, "Sort by points, highest first")

	return cmd
}

// rememberSummoner records a resolved name for shell completion. Failures
// only cost a completion.
func rememberSummoner(app *appctx.App, name string, s *riot.Summoner) {
	if err := completion.NewStore(app.Config.CacheDir).Record(name, s.SummonerLevel); err != nil {
		app.Logger.Debug("completion cache write failed", zap.Error(err))
	}
}

// masteryTable renders mastery entries as a table in text mode and as the
// raw list otherwise.
type masteryTable []riot.ChampionMastery

func (t masteryTable) RenderText(w io.Writer) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Champion", "Level", "Points", "To next", "Chest", "Last played"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, m := range t {
		chest := ""
		if m.ChestGranted {
			chest = "yes"
		}
		last := "-"
		if m.LastPlayTime > 0 {
			last = m.LastPlayed().UTC().Format(time.DateOnly)
		}
		table.Append([]string{
			strconv.FormatInt(m.ChampionID, 10),
			strconv.Itoa(m.ChampionLevel),
			printer.Sprintf("%d", m.ChampionPoints),
			printer.Sprintf("%d", m.ChampionPointsUntilNextLevel),
			chest,
			last,
		})
	}
	table.Render()
	return nil
}

// NewSummonerCmd creates the summoner command.
func NewSummonerCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "summoner <summoner-name>",
		Short:             "Resolve a summoner's identity",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.NewCompleter(nil).SummonerNameCompletion(),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if err := app.Config.Validate(false); err != nil {
				return err
			}

			s, err := app.Resolver.ResolveSummoner(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			rememberSummoner(app, args[0], s)
			return app.OK(summonerView{s}, output.WithSummary(fmt.Sprintf("%s (level %d)", s.Name, s.SummonerLevel)))
		},
	}
}

// summonerView prints a summoner as aligned key/value lines.
type summonerView struct {
	*riot.Summoner
}

func (v summonerView) RenderText(w io.Writer) error {
	table := tablewriter.NewWriter(w)
	table.SetBorder(false)
	table.SetColumnSeparator("")
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.AppendBulk([][]string{
		{"Name", v.Name},
		{"ID", v.ID},
		{"Account", v.AccountID},
		{"PUUID", v.PUUID},
		{"Level", strconv.FormatInt(v.SummonerLevel, 10)},
		{"Icon", strconv.Itoa(v.ProfileIconID)},
		{"Revised", v.Revised().UTC().Format(time.RFC3339)},
	})
	table.Render()
	return nil
}

package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/quilldev/kurisu/internal/output"
	"github.com/quilldev/kurisu/internal/riot"
)

// OptionSummonerName is the mastery command's only parameter.
const OptionSummonerName = "summoner_name"

// MasteryLookup resolves a display name to its mastery collection.
type MasteryLookup interface {
	ResolveMasteriesByName(ctx context.Context, name string) ([]riot.ChampionMastery, error)
}

// MasteryCommand replies with a summoner's top champion mastery.
type MasteryCommand struct {
	lookup  MasteryLookup
	logger  *zap.Logger
	printer *message.Printer
}

// NewMasteryCommand creates the command. A nil logger discards logs.
func NewMasteryCommand(lookup MasteryLookup, logger *zap.Logger) *MasteryCommand {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MasteryCommand{
		lookup:  lookup,
		logger:  logger,
		printer: message.NewPrinter(language.English),
	}
}

func (c *MasteryCommand) Name() string { return "mastery" }

func (c *MasteryCommand) Describe() Description {
	return Description{
		Name:        "mastery",
		Description: "Gets your top champion mastery",
		Options: []Option{
			{Name: OptionSummonerName, Description: "Summoner name to look up", Required: true},
		},
	}
}

// Handle reports the first entry in upstream order.
func (c *MasteryCommand) Handle(ctx context.Context, req Request) string {
	name, _ := req.Option(OptionSummonerName)
	name = strings.TrimSpace(name)
	if name == "" {
		return "Please provide a summoner name."
	}

	masteries, err := c.lookup.ResolveMasteriesByName(ctx, name)
	if err != nil {
		c.logger.Warn("mastery lookup failed",
			zap.String("interaction", req.ID),
			zap.String("summoner", name),
			zap.Error(err))
		return userMessage(name, err)
	}
	if len(masteries) == 0 {
		return c.printer.Sprintf("%s has no champion mastery yet.", name)
	}

	return c.formatTop(name, masteries[0])
}

func (c *MasteryCommand) formatTop(name string, m riot.ChampionMastery) string {
	var b strings.Builder
	b.WriteString(c.printer.Sprintf("%s's top champion is #%s: level %d with %d points",
		name, strconv.FormatInt(m.ChampionID, 10), m.ChampionLevel, m.ChampionPoints))
	if m.ChampionPointsUntilNextLevel > 0 {
		b.WriteString(c.printer.Sprintf(" (%d to next level)", m.ChampionPointsUntilNextLevel))
	}
	b.WriteString(".")
	if m.LastPlayTime > 0 {
		b.WriteString(" Last played ")
		b.WriteString(m.LastPlayed().UTC().Format(time.DateOnly))
		b.WriteString(".")
	}
	if m.ChestGranted {
		b.WriteString(" Chest earned.")
	}
	return b.String()
}

// userMessage is the single place internal error codes become chat text.
func userMessage(name string, err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return "That took too long. Please try again in a moment."
	}
	switch output.AsError(err).Code {
	case output.CodeNotFound:
		return "I couldn't find a summoner named \"" + name + "\"."
	case output.CodeRateLimit:
		return "The game API is busy right now. Please try again in a moment."
	case output.CodeAuth, output.CodeNotConfigured:
		return "I'm not authorized to query the game API right now."
	case output.CodeTransport:
		return "I couldn't reach the game API. Please try again later."
	default:
		return "Something went wrong looking that up."
	}
}

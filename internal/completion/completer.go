package completion

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quilldev/kurisu/internal/appctx"
	"github.com/quilldev/kurisu/internal/config"
)

// CacheDirFunc returns the cache directory to use for completion.
type CacheDirFunc func(cmd *cobra.Command) string

// DefaultCacheDirFunc returns the cache directory by checking, in order,
// the --cache-dir flag, the app in context, KURISU_CACHE_DIR and the
// default location.
//
// During __complete PersistentPreRunE does not run, so cache_dir set in a
// config file is not honored here.
func DefaultCacheDirFunc(cmd *cobra.Command) string {
	if root := cmd.Root(); root != nil {
		if flag := root.PersistentFlags().Lookup("cache-dir"); flag != nil && flag.Changed {
			return flag.Value.String()
		}
	}
	if app := appctx.FromContext(cmd.Context()); app != nil {
		return app.Config.CacheDir
	}
	if v := os.Getenv("KURISU_CACHE_DIR"); v != "" {
		return v
	}
	return config.Default().CacheDir
}

// Completer provides tab completion functions.
// It reads from the file-based cache and does NOT initialize the full App.
type Completer struct {
	getCacheDir CacheDirFunc
}

// NewCompleter creates a new Completer. A nil getCacheDir uses
// DefaultCacheDirFunc.
func NewCompleter(getCacheDir CacheDirFunc) *Completer {
	if getCacheDir == nil {
		getCacheDir = DefaultCacheDirFunc
	}
	return &Completer{getCacheDir: getCacheDir}
}

func (c *Completer) store(cmd *cobra.Command) *Store {
	return NewStore(c.getCacheDir(cmd))
}

// SummonerNameCompletion completes the first positional argument with
// recently resolved summoner names, most recent first.
func (c *Completer) SummonerNameCompletion() cobra.CompletionFunc {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]cobra.Completion, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		toCompleteLower := strings.ToLower(toComplete)
		var completions []cobra.Completion
		for _, r := range c.store(cmd).Summoners() {
			if !strings.Contains(strings.ToLower(r.Name), toCompleteLower) {
				continue
			}
			desc := "looked up " + r.LookedUp.Format("2006-01-02")
			if r.Level > 0 {
				desc = fmt.Sprintf("level %d, %s", r.Level, desc)
			}
			completions = append(completions, cobra.CompletionWithDesc(r.Name, desc))
		}
		return completions, cobra.ShellCompDirectiveNoFileComp
	}
}

package bot

import (
	"sort"
	"sync"
)

// Registry maps command names to handlers.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]Command
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]Command)}
}

// Register adds cmd, replacing any command with the same name. It returns
// the registry so registrations can be chained.
func (r *Registry) Register(cmd Command) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[cmd.Name()] = cmd
	return r
}

// Lookup finds a command by name.
func (r *Registry) Lookup(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[name]
	return cmd, ok
}

// Commands returns every registered command sorted by name.
func (r *Registry) Commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		out = append(out, cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Descriptions returns the descriptions of all commands, sorted by name.
func (r *Registry) Descriptions() []Description {
	cmds := r.Commands()
	out := make([]Description, len(cmds))
	for i, cmd := range cmds {
		out[i] = cmd.Describe()
	}
	return out
}

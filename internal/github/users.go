package github

import (
	"context"
	"sort"
)

// UserProber checks whether a GitHub login exists.
type UserProber interface {
	UserExists(ctx context.Context, login string) (bool, error)
}

// UserDirectory maps Bitbucket usernames to GitHub logins. Explicit
// mappings win; any other name is assumed to be the same login on GitHub
// if a profile with that name exists.
//
// Resolve does the network work ahead of rendering so that Lookup stays a
// pure cache read.
type UserDirectory struct {
	prober   UserProber
	explicit map[string]string
	probed   map[string]string // "" records a miss
}

// NewUserDirectory creates a directory. A nil prober disables probing.
func NewUserDirectory(prober UserProber, explicit map[string]string) *UserDirectory {
	if explicit == nil {
		explicit = map[string]string{}
	}
	return &UserDirectory{prober: prober, explicit: explicit, probed: map[string]string{}}
}

// Resolve probes every name that is neither mapped nor already probed.
func (u *UserDirectory) Resolve(ctx context.Context, names ...string) error {
	if u.prober == nil {
		return nil
	}
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, ok := u.explicit[name]; ok {
			continue
		}
		if _, ok := u.probed[name]; ok {
			continue
		}
		exists, err := u.prober.UserExists(ctx, name)
		if err != nil {
			return err
		}
		if exists {
			u.probed[name] = name
		} else {
			u.probed[name] = ""
		}
	}
	return nil
}

// Lookup implements convert.UserDirectory.
func (u *UserDirectory) Lookup(bbUsername string) (string, bool) {
	if gh, ok := u.explicit[bbUsername]; ok {
		return gh, gh != ""
	}
	gh := u.probed[bbUsername]
	return gh, gh != ""
}

// Unmapped returns the probed names with no GitHub account, sorted.
func (u *UserDirectory) Unmapped() []string {
	var out []string
	for name, gh := range u.probed {
		if gh == "" {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

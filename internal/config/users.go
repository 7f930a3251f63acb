package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// userMapFile is the layout of a --users-file:
//
//	[users]
//	fk = "fkrull"
type userMapFile struct {
	Users map[string]string `toml:"users"`
}

// LoadUserMap reads a TOML user map. An empty path yields an empty map.
func LoadUserMap(path string) (map[string]string, error) {
	users := make(map[string]string)
	if path == "" {
		return users, nil
	}
	var f userMapFile
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, fmt.Errorf("failed to read user map %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("user map %s: unknown keys %v", path, undecoded)
	}
	for bb, gh := range f.Users {
		users[bb] = strings.TrimSpace(gh)
	}
	return users, nil
}

// ParseUserMappings parses repeated `--map-user bb=gh` values into dst,
// overriding entries loaded from a file.
func ParseUserMappings(dst map[string]string, values []string) error {
	for _, val := range values {
		bb, gh, ok := strings.Cut(val, "=")
		bb, gh = strings.TrimSpace(bb), strings.TrimSpace(gh)
		if !ok || bb == "" || gh == "" {
			return fmt.Errorf("invalid --map-user %q: want bitbucket=github", val)
		}
		dst[bb] = gh
	}
	return nil
}

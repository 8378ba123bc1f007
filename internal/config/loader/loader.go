// Package loader reads host configuration sources into generic maps.
//
// Each source (a TOML file, the process environment) produces a
// map[string]any keyed by the TOML table layout. Sources are combined with
// Merge, later sources overriding earlier ones, and the result is decoded
// into the typed configuration by the parent package.
package loader

import "os"

// Loader is a configuration source. A source that does not exist yields
// a nil map and no error.
type Loader interface {
	Load() (map[string]any, error)
}

// FileSystem reads configuration files. Tests substitute an in-memory one.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
}

type osFS struct{}

func (osFS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// DefaultFS returns the operating system file system.
func DefaultFS() FileSystem {
	return osFS{}
}

// Merge combines layers into a new map. Later layers win; nested tables
// are merged key by key and the inputs are left untouched.
func Merge(layers ...map[string]any) map[string]any {
	out := make(map[string]any)
	for _, layer := range layers {
		for key, val := range layer {
			table, isTable := val.(map[string]any)
			prev, prevIsTable := out[key].(map[string]any)
			switch {
			case isTable && prevIsTable:
				out[key] = Merge(prev, table)
			case isTable:
				out[key] = Merge(table)
			default:
				out[key] = val
			}
		}
	}
	return out
}

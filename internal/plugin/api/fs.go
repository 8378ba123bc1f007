package api

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/dshills/brushwork/internal/plugin/security"
)

func (s *Surface) fsModule() Module {
	return Module{
		Name: "fs",
		Functions: []*Function{
			fn("read", security.FSRead, s.fsRead),
			fn("list", security.FSRead, s.fsList),
			fn("exists", security.FSRead, s.fsExists),
			fn("write", security.FSWrite, s.fsWrite),
			fn("remove", security.FSWrite, s.fsRemove),
			fn("mkdir", security.FSWrite, s.fsMkdir),
		},
	}
}

// resolve confines a path argument to the plugin storage area. Escapes are
// reported as PermissionDenied.
func (s *Surface) resolve(args Args, i int, perm security.Permission) (string, error) {
	p, err := args.OptString(i, ".")
	if err != nil {
		return "", err
	}
	abs, err := s.checker.ResolvePath(p)
	if err != nil {
		return "", security.Denied(s.plugin, perm, fmt.Sprintf("access to %q", p))
	}
	return abs, nil
}

// read(path) -> string
func (s *Surface) fsRead(_ context.Context, args Args) (any, error) {
	path, err := s.resolve(args, 0, security.FSRead)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// list(dir?) -> [name]; directories end with "/"
func (s *Surface) fsList(_ context.Context, args Args) (any, error) {
	path, err := s.resolve(args, 0, security.FSRead)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) && path == s.checker.StorageRoot() {
			return []any{}, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]any, len(names))
	for i, n := range names {
		out[i] = n
	}
	return out, nil
}

// exists(path) -> bool
func (s *Surface) fsExists(_ context.Context, args Args) (any, error) {
	path, err := s.resolve(args, 0, security.FSRead)
	if err != nil {
		return nil, err
	}
	_, err = os.Stat(path)
	return err == nil, nil
}

// write(path, content)
func (s *Surface) fsWrite(_ context.Context, args Args) (any, error) {
	path, err := s.resolve(args, 0, security.FSWrite)
	if err != nil {
		return nil, err
	}
	content, err := args.String(1)
	if err != nil {
		return nil, err
	}
	if int64(len(content)) > s.limits.MaxFileBytes {
		return nil, args.Wrap(1, fmt.Errorf("content exceeds %d bytes", s.limits.MaxFileBytes))
	}
	if path == s.checker.StorageRoot() {
		return nil, args.Wrap(0, fmt.Errorf("path is a directory"))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return nil, os.WriteFile(path, []byte(content), 0o644)
}

// remove(path)
func (s *Surface) fsRemove(_ context.Context, args Args) (any, error) {
	path, err := s.resolve(args, 0, security.FSWrite)
	if err != nil {
		return nil, err
	}
	if path == s.checker.StorageRoot() {
		return nil, args.Wrap(0, fmt.Errorf("cannot remove the storage root"))
	}
	return nil, os.RemoveAll(path)
}

// mkdir(path)
func (s *Surface) fsMkdir(_ context.Context, args Args) (any, error) {
	path, err := s.resolve(args, 0, security.FSWrite)
	if err != nil {
		return nil, err
	}
	return nil, os.MkdirAll(path, 0o755)
}

package plugin

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/ulikunitz/xz"

	"github.com/dshills/brushwork/internal/plugin/fault"
)

const (
	stagingPrefix = ".staging-"
	trashPrefix   = ".trash-"
)

// Installer copies plugin packages into the managed plugins directory.
// Every install is staged in a hidden directory next to the final location
// and moved into place with a rename.
type Installer struct {
	root         string
	maxFileBytes int64
	log          *logrus.Entry
}

// NewInstaller creates an installer rooted at the plugins directory.
// maxFileBytes caps each extracted file; zero disables the cap.
func NewInstaller(root string, maxFileBytes int64, log *logrus.Entry) *Installer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Installer{root: root, maxFileBytes: maxFileBytes, log: log.WithField("component", "installer")}
}

// Root returns the plugins directory.
func (i *Installer) Root() string {
	return i.root
}

// PackageDir returns the installed location of a plugin.
func (i *Installer) PackageDir(id string) string {
	return filepath.Join(i.root, id)
}

// Staged is a package unpacked into a staging directory.
type Staged struct {
	// Source is the path the package came from.
	Source string

	// Dir is the package root: the directory holding the manifest.
	Dir string

	// Manifest is the parsed, not yet validated, manifest.
	Manifest *Manifest

	staging string
}

// Discard removes the staging directory.
func (s *Staged) Discard() {
	if s != nil && s.staging != "" {
		_ = os.RemoveAll(s.staging)
		s.staging = ""
	}
}

// sourceKind classifies an install source.
type sourceKind int

const (
	sourceUnsupported sourceKind = iota
	sourceDir
	sourceZip
	sourceTarGz
	sourceTarXz
)

func classify(source string) (sourceKind, error) {
	st, err := os.Stat(source)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return sourceUnsupported, fault.New(fault.UnsupportedSource, "", fmt.Sprintf("%s does not exist", source))
		}
		return sourceUnsupported, fault.Wrap(fault.IOFailure, "", err)
	}
	if st.IsDir() {
		return sourceDir, nil
	}
	name := strings.ToLower(source)
	switch {
	case strings.HasSuffix(name, ".zip"):
		return sourceZip, nil
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return sourceTarGz, nil
	case strings.HasSuffix(name, ".tar.xz"), strings.HasSuffix(name, ".txz"):
		return sourceTarXz, nil
	}
	return sourceUnsupported, fault.New(fault.UnsupportedSource, "", fmt.Sprintf("%s is not a directory or a .zip, .tar.gz or .tar.xz archive", filepath.Base(source)))
}

// Stage unpacks source into a new staging directory and locates its
// manifest. The caller must Commit or Discard the result.
func (i *Installer) Stage(ctx context.Context, source string) (*Staged, error) {
	kind, err := classify(source)
	if err != nil {
		return nil, installError(err)
	}

	if err := os.MkdirAll(i.root, 0o755); err != nil {
		return nil, fault.Wrap(fault.IOFailure, "", err).WithOp("install")
	}
	staging := filepath.Join(i.root, stagingPrefix+uuid.NewString())
	raw := filepath.Join(staging, "pkg")
	if err := os.MkdirAll(raw, 0o755); err != nil {
		return nil, fault.Wrap(fault.IOFailure, "", err).WithOp("install")
	}
	staged := &Staged{Source: source, staging: staging}

	switch kind {
	case sourceDir:
		err = i.copyDir(ctx, source, raw)
	case sourceZip:
		err = i.extractZip(ctx, source, raw)
	case sourceTarGz:
		err = i.extractTar(ctx, source, raw, gzipReader)
	case sourceTarXz:
		err = i.extractTar(ctx, source, raw, xzReader)
	}
	if err != nil {
		staged.Discard()
		return nil, installError(err)
	}

	dir, manifestPath, err := locateManifest(raw)
	if err != nil {
		staged.Discard()
		return nil, fault.New(fault.ArchiveNoManifest, "", fmt.Sprintf("%s: %v", filepath.Base(source), err)).WithOp("install")
	}
	m, err := ReadManifest(manifestPath)
	if err != nil {
		staged.Discard()
		return nil, installError(err)
	}

	staged.Dir = dir
	staged.Manifest = m
	i.log.WithFields(logrus.Fields{"source": source, "plugin": m.ID}).Debug("package staged")
	return staged, nil
}

// Commit moves a staged package to its final location. An existing
// installation of the same id is replaced only when replace is set.
func (i *Installer) Commit(s *Staged, id string, replace bool) (string, error) {
	defer s.Discard()

	target := i.PackageDir(id)
	var trash string
	if _, err := os.Lstat(target); err == nil {
		if !replace {
			return "", fault.New(fault.IOFailure, id, fmt.Sprintf("%s already exists", target)).WithOp("install")
		}
		trash = filepath.Join(i.root, trashPrefix+uuid.NewString())
		if err := os.Rename(target, trash); err != nil {
			return "", fault.Wrap(fault.IOFailure, id, err).WithOp("install")
		}
	}

	if err := os.Rename(s.Dir, target); err != nil {
		if trash != "" {
			_ = os.Rename(trash, target)
		}
		return "", fault.Wrap(fault.IOFailure, id, err).WithOp("install")
	}
	if trash != "" {
		if err := os.RemoveAll(trash); err != nil {
			i.log.WithError(err).WithField("plugin", id).Warn("failed to remove replaced package")
		}
	}
	return target, nil
}

// Remove deletes an installed package directory.
func (i *Installer) Remove(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return fault.New(fault.IOFailure, id, "refusing to remove invalid package path").WithOp("uninstall")
	}
	if err := os.RemoveAll(i.PackageDir(id)); err != nil {
		return fault.Wrap(fault.IOFailure, id, err).WithOp("uninstall")
	}
	return nil
}

// Sweep removes staging and trash directories left by an interrupted run.
func (i *Installer) Sweep() {
	entries, err := os.ReadDir(i.root)
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() && (strings.HasPrefix(name, stagingPrefix) || strings.HasPrefix(name, trashPrefix)) {
			if err := os.RemoveAll(filepath.Join(i.root, name)); err == nil {
				i.log.WithField("dir", name).Debug("removed leftover staging directory")
			}
		}
	}
}

// locateManifest finds the manifest at the package root or exactly one
// directory level below it.
func locateManifest(raw string) (dir, manifest string, err error) {
	if p, ok := FindManifest(raw); ok {
		return raw, p, nil
	}
	entries, err := os.ReadDir(raw)
	if err != nil {
		return "", "", err
	}
	var found []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sub := filepath.Join(raw, e.Name())
		if p, ok := FindManifest(sub); ok {
			found = append(found, p)
		}
	}
	switch len(found) {
	case 0:
		return "", "", errors.New("no manifest at the root or one level deep")
	case 1:
		return filepath.Dir(found[0]), found[0], nil
	default:
		return "", "", fmt.Errorf("%d manifests one level deep", len(found))
	}
}

// safeJoin resolves an archive entry name inside dst.
func safeJoin(dst, name string) (string, error) {
	slashed := strings.ReplaceAll(name, `\`, "/")
	if path.IsAbs(slashed) || filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", fmt.Errorf("absolute path %q in package", name)
	}
	clean := path.Clean(slashed)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("path %q escapes the package", name)
	}
	if clean == "." {
		return dst, nil
	}
	return filepath.Join(dst, filepath.FromSlash(clean)), nil
}

func (i *Installer) writeFile(target string, r io.Reader, mode fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm()|0o600)
	if err != nil {
		return err
	}
	if i.maxFileBytes > 0 {
		r = io.LimitReader(r, i.maxFileBytes+1)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if i.maxFileBytes > 0 && n > i.maxFileBytes {
		return fmt.Errorf("%s exceeds %d bytes", filepath.Base(target), i.maxFileBytes)
	}
	return nil
}

func (i *Installer) copyDir(ctx context.Context, src, dst string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target, err := safeJoin(dst, rel)
		if err != nil {
			return err
		}
		switch {
		case d.Type()&fs.ModeSymlink != 0:
			return fmt.Errorf("symlink %q in package", rel)
		case d.IsDir():
			return os.MkdirAll(target, 0o755)
		case d.Type().IsRegular():
			info, err := d.Info()
			if err != nil {
				return err
			}
			f, err := os.Open(p)
			if err != nil {
				return err
			}
			defer f.Close()
			return i.writeFile(target, f, info.Mode())
		default:
			return fmt.Errorf("unsupported file %q in package", rel)
		}
	})
}

func (i *Installer) extractZip(ctx context.Context, src, dst string) error {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return fault.Wrap(fault.UnsupportedSource, "", fmt.Errorf("open zip: %w", err))
	}
	defer zr.Close()

	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		target, err := safeJoin(dst, f.Name)
		if err != nil {
			return err
		}
		mode := f.Mode()
		switch {
		case mode&fs.ModeSymlink != 0:
			return fmt.Errorf("symlink %q in package", f.Name)
		case f.FileInfo().IsDir():
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case mode.IsRegular():
			rc, err := f.Open()
			if err != nil {
				return err
			}
			err = i.writeFile(target, rc, mode)
			rc.Close()
			if err != nil {
				return err
			}
		default:
			return fmt.Errorf("unsupported entry %q in package", f.Name)
		}
	}
	return nil
}

type decompressor func(io.Reader) (io.Reader, func(), error)

func gzipReader(r io.Reader) (io.Reader, func(), error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, nil, err
	}
	return gz, func() { gz.Close() }, nil
}

func xzReader(r io.Reader) (io.Reader, func(), error) {
	xr, err := xz.NewReader(r)
	if err != nil {
		return nil, nil, err
	}
	return xr, func() {}, nil
}

func (i *Installer) extractTar(ctx context.Context, src, dst string, open decompressor) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	r, closeFn, err := open(f)
	if err != nil {
		return fault.Wrap(fault.UnsupportedSource, "", fmt.Errorf("open archive: %w", err))
	}
	defer closeFn()

	tr := tar.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar header: %w", err)
		}

		target, err := safeJoin(dst, header.Name)
		if err != nil {
			return err
		}
		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := i.writeFile(target, tr, fs.FileMode(header.Mode)); err != nil {
				return err
			}
		case tar.TypeXGlobalHeader:
			// pax metadata
		case tar.TypeSymlink, tar.TypeLink:
			return fmt.Errorf("link %q in package", header.Name)
		default:
			return fmt.Errorf("unsupported entry %q in package", header.Name)
		}
	}
}

// installError classifies extraction failures; unclassified errors are I/O.
func installError(err error) error {
	var fe *fault.Error
	if errors.As(err, &fe) {
		return fe.WithOp("install")
	}
	return fault.Wrap(fault.IOFailure, "", err).WithOp("install")
}

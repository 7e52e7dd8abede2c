package xcresult

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"

	"github.com/xcbolt/xcreport/internal/util"
)

// ExtractArchive unpacks a .tar, .tar.gz/.tgz or .tar.xz/.txz file into dest.
// dest must not exist or be empty. Entries that would land outside dest are
// a fatal error, not skipped.
func ExtractArchive(archive, dest string) error {
	if err := prepareDestination(dest); err != nil {
		return err
	}
	// Containment is checked against the physical path.
	dest, err := filepath.EvalSymlinks(dest)
	if err != nil {
		return &ConversionError{Message: "cannot resolve extraction directory", Err: err}
	}

	f, err := os.Open(archive)
	if err != nil {
		return &ConversionError{Message: "cannot open archive " + archive, Err: err}
	}
	defer f.Close()

	r, err := decompress(archive, f)
	if err != nil {
		return &ConversionError{Message: "cannot decompress " + archive, Err: err}
	}
	if c, ok := r.(io.Closer); ok {
		defer c.Close()
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return &ConversionError{Message: "cannot read archive " + archive, Err: err}
		}
		if err := extractEntry(tr, hdr, dest); err != nil {
			return err
		}
	}
}

func prepareDestination(dest string) error {
	fi, err := os.Stat(dest)
	if errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return &ConversionError{Message: "cannot create extraction directory " + dest, Err: err}
		}
		return nil
	}
	if err != nil {
		return &ConversionError{Message: "cannot inspect extraction directory " + dest, Err: err}
	}
	if !fi.IsDir() {
		return &ConversionError{Message: fmt.Sprintf("extraction destination %s exists and is not a directory", dest)}
	}
	empty, err := util.IsEmptyDir(dest)
	if err != nil {
		return &ConversionError{Message: "cannot inspect extraction directory " + dest, Err: err}
	}
	if !empty {
		return &ConversionError{Message: fmt.Sprintf("extraction destination %s is not empty", dest)}
	}
	return nil
}

func decompress(name string, r io.Reader) (io.Reader, error) {
	_, kind, _ := archiveSuffix(filepath.Base(name))
	switch kind {
	case compressionGzip:
		return pgzip.NewReader(r)
	case compressionXz:
		return xz.NewReader(r)
	default:
		return r, nil
	}
}

// maxLinkHops bounds symlink resolution inside the destination.
const maxLinkHops = 255

func extractEntry(tr *tar.Reader, hdr *tar.Header, dest string) error {
	parts := nameParts(hdr.Name)
	if len(parts) == 0 {
		// "./" root entry
		return nil
	}
	base := parts[len(parts)-1]
	parent, ok := resolveInside(dest, parts[:len(parts)-1])
	if !ok || base == ".." {
		return &ConversionError{Message: fmt.Sprintf("archive entry %q escapes extraction directory %s", hdr.Name, dest)}
	}
	target := filepath.Join(parent, base)

	switch hdr.Typeflag {
	case tar.TypeDir:
		if err := os.MkdirAll(target, 0o755); err != nil {
			return &ConversionError{Message: "cannot create directory " + target, Err: err}
		}
		return nil
	case tar.TypeReg:
		return writeEntryFile(tr, target, hdr.FileInfo().Mode().Perm())
	case tar.TypeSymlink:
		// Resolve the link as the kernel would, through links extracted so far.
		linkParts := append(nameParts(hdr.Name)[:len(parts)-1], nameParts(hdr.Linkname)...)
		if filepath.IsAbs(hdr.Linkname) {
			rel, err := filepath.Rel(dest, filepath.Clean(hdr.Linkname))
			if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
				return escapingLink(hdr, dest)
			}
			linkParts = nameParts(filepath.ToSlash(rel))
		}
		if _, ok := resolveInside(dest, linkParts); !ok {
			return escapingLink(hdr, dest)
		}
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return &ConversionError{Message: "cannot create directory " + parent, Err: err}
		}
		if err := os.Symlink(hdr.Linkname, target); err != nil {
			return &ConversionError{Message: "cannot create symlink " + target, Err: err}
		}
		return nil
	case tar.TypeLink:
		source, ok := resolveInside(dest, nameParts(hdr.Linkname))
		if !ok || source == dest {
			return &ConversionError{Message: fmt.Sprintf("archive hard link %q -> %q escapes extraction directory %s", hdr.Name, hdr.Linkname, dest)}
		}
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return &ConversionError{Message: "cannot create directory " + parent, Err: err}
		}
		if err := os.Link(source, target); err != nil {
			return &ConversionError{Message: "cannot create hard link " + target, Err: err}
		}
		return nil
	default:
		// Devices, fifos and pax metadata have no place in a result bundle.
		return nil
	}
}

func escapingLink(hdr *tar.Header, dest string) error {
	return &ConversionError{Message: fmt.Sprintf("archive symlink %q -> %q escapes extraction directory %s", hdr.Name, hdr.Linkname, dest)}
}

// nameParts splits a slash separated archive path without cleaning it, so
// ".." keeps its meaning after a symlink component.
func nameParts(name string) []string {
	parts := []string{}
	for _, p := range strings.Split(filepath.ToSlash(name), "/") {
		if p != "" && p != "." {
			parts = append(parts, p)
		}
	}
	return parts
}

// resolveInside walks parts from root, following symlinks already on disk,
// and returns the physical path they name. It fails as soon as any step
// leaves root.
func resolveInside(root string, parts []string) (string, bool) {
	cur := root
	hops := 0
	for len(parts) > 0 {
		p := parts[0]
		parts = parts[1:]
		if p == ".." {
			if cur == root {
				return "", false
			}
			cur = filepath.Dir(cur)
			continue
		}
		next := filepath.Join(cur, p)
		fi, err := os.Lstat(next)
		if err != nil || fi.Mode()&os.ModeSymlink == 0 {
			cur = next
			continue
		}
		if hops++; hops > maxLinkHops {
			return "", false
		}
		link, err := os.Readlink(next)
		if err != nil {
			return "", false
		}
		if filepath.IsAbs(link) {
			rel, err := filepath.Rel(root, filepath.Clean(link))
			if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
				return "", false
			}
			cur = root
			parts = append(nameParts(filepath.ToSlash(rel)), parts...)
			continue
		}
		parts = append(nameParts(link), parts...)
	}
	return cur, cur == root || util.WithinDir(root, cur)
}

func writeEntryFile(r io.Reader, target string, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return &ConversionError{Message: "cannot create directory " + filepath.Dir(target), Err: err}
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_EXCL, perm|0o600)
	if err != nil {
		return &ConversionError{Message: "cannot create file " + target, Err: err}
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return &ConversionError{Message: "cannot write file " + target, Err: err}
	}
	if err := out.Close(); err != nil {
		return &ConversionError{Message: "cannot write file " + target, Err: err}
	}
	return nil
}

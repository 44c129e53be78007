// pkg/extract/archive.go - unpacks zip and tar archives for the extract step.

package extract

import (
	"archive/tar"
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/windowsadmins/get/pkg/errs"
	"github.com/windowsadmins/get/pkg/logging"
)

// Format identifies an archive container and compression.
type Format string

const (
	FormatUnknown Format = ""
	FormatZip     Format = "zip"
	FormatTar     Format = "tar"
	FormatTarGz   Format = "tar.gz"
	FormatTarXz   Format = "tar.xz"
	FormatTarZst  Format = "tar.zst"
)

// DetectFormat picks the archive format from the file name, falling back to
// content sniffing when the extension is not recognized.
func DetectFormat(path string) (Format, error) {
	if f := formatFromName(path); f != FormatUnknown {
		return f, nil
	}
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return FormatUnknown, err
	}
	for m := mt; m != nil; m = m.Parent() {
		switch m.Extension() {
		case ".zip":
			return FormatZip, nil
		case ".tar":
			return FormatTar, nil
		case ".gz":
			return FormatTarGz, nil
		case ".xz":
			return FormatTarXz, nil
		case ".zst":
			return FormatTarZst, nil
		}
	}
	return FormatUnknown, fmt.Errorf("unsupported archive type %s", mt.String())
}

// Supported reports whether name carries an archive extension this package
// can unpack.
func Supported(name string) bool {
	return formatFromName(name) != FormatUnknown
}

func formatFromName(path string) Format {
	name := strings.ToLower(filepath.Base(path))
	switch {
	case strings.HasSuffix(name, ".zip"), strings.HasSuffix(name, ".nupkg"):
		return FormatZip
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return FormatTarGz
	case strings.HasSuffix(name, ".tar.xz"), strings.HasSuffix(name, ".txz"):
		return FormatTarXz
	case strings.HasSuffix(name, ".tar.zst"), strings.HasSuffix(name, ".tzst"):
		return FormatTarZst
	case strings.HasSuffix(name, ".tar"):
		return FormatTar
	}
	return FormatUnknown
}

// Archive unpacks src into dest, creating dest when needed. Entries that
// would land outside dest are rejected. The context is checked before each entry.
func Archive(ctx context.Context, src, dest string) error {
	format, err := DetectFormat(src)
	if err != nil {
		return fmt.Errorf("detecting archive format of %s: %w", src, err)
	}
	if err := os.MkdirAll(dest, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", dest, err)
	}
	logging.Debug("Extracting archive", "archive", src, "dest", dest, "format", string(format))

	if format == FormatZip {
		return unzip(ctx, src, dest)
	}

	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader
	switch format {
	case FormatTarGz:
		gr, err := gzip.NewReader(f)
		if err != nil {
			return err
		}
		defer gr.Close()
		r = gr
	case FormatTarXz:
		xr, err := xz.NewReader(f)
		if err != nil {
			return err
		}
		r = xr
	case FormatTarZst:
		zr, err := zstd.NewReader(f)
		if err != nil {
			return err
		}
		defer zr.Close()
		r = zr
	default:
		r = f
	}
	return untar(ctx, src, tar.NewReader(r), dest)
}

// target joins name onto dest and refuses paths that escape it.
func target(dest, name string) (string, error) {
	clean := filepath.Join(dest, filepath.FromSlash(name))
	rel, err := filepath.Rel(dest, clean)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(name) {
		return "", fmt.Errorf("illegal file path in archive: %s", name)
	}
	return clean, nil
}

func unzip(ctx context.Context, src, dest string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		if err := errs.Cancelled(ctx, src); err != nil {
			return err
		}
		path, err := target(dest, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(path, 0755); err != nil {
				return err
			}
			continue
		}
		if err := writeZipEntry(f, path); err != nil {
			return err
		}
	}
	return nil
}

func writeZipEntry(f *zip.File, path string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return writeFile(path, rc, f.Mode().Perm())
}

func untar(ctx context.Context, src string, tr *tar.Reader, dest string) error {
	for {
		if err := errs.Cancelled(ctx, src); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", src, err)
		}
		path, err := target(dest, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(path, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(path, tr, os.FileMode(hdr.Mode).Perm()); err != nil {
				return err
			}
		default:
			// links and devices are not installed
			logging.Debug("Skipping archive entry", "archive", src, "entry", hdr.Name, "type", string(hdr.Typeflag))
		}
	}
}

func writeFile(path string, r io.Reader, perm os.FileMode) error {
	if perm == 0 {
		perm = 0644
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	out, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

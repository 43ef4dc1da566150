// Copyright 2026 The Mcvisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package archive packs world directories into zstd compressed tar
// files, and unpacks them again.
package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Ext is the file name extension of archives.
const Ext = ".tar.zst"

// Progress is told the name of every entry as it is processed.
type Progress func(name string)

func (p Progress) report(name string) {
	if p != nil {
		p(name)
	}
}

// Create archives the directory root/world into dst.  Entry names are
// relative to root, so they all start with world.  The archive is written
// next to dst and renamed into place when complete; on failure nothing is
// left behind.
func Create(dst, root, world string, progress Progress) (err error) {
	tmp := dst + ".part"
	f, e := os.Create(tmp)
	if e != nil {
		return e
	}
	defer func() {
		if err != nil {
			os.Remove(tmp)
		}
	}()

	zw, e := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if e != nil {
		f.Close()
		return e
	}
	tw := tar.NewWriter(zw)

	walkErr := filepath.WalkDir(filepath.Join(root, world), func(p string, d fs.DirEntry, e error) error {
		if e != nil {
			return e
		}
		if !d.IsDir() && !d.Type().IsRegular() {
			return nil
		}
		rel, e := filepath.Rel(root, p)
		if e != nil {
			return e
		}
		info, e := d.Info()
		if e != nil {
			return e
		}
		hdr, e := tar.FileInfoHeader(info, "")
		if e != nil {
			return e
		}
		hdr.Name = filepath.ToSlash(rel)
		if d.IsDir() {
			hdr.Name += "/"
		}
		if e := tw.WriteHeader(hdr); e != nil {
			return e
		}
		if d.Type().IsRegular() {
			if e := copyFile(tw, p); e != nil {
				return e
			}
		}
		progress.report(hdr.Name)
		return nil
	})

	// Close in order, keeping the first error.
	for _, e := range []error{walkErr, tw.Close(), zw.Close(), f.Close()} {
		if e != nil && err == nil {
			err = e
		}
	}
	if err != nil {
		return err
	}
	return os.Rename(tmp, dst)
}

func copyFile(w io.Writer, name string) error {
	f, e := os.Open(name)
	if e != nil {
		return e
	}
	defer f.Close()
	_, e = io.Copy(w, f)
	return e
}

// Extract unpacks src into root/world.  The first path component of every
// entry is replaced by world, so an archive taken of one world can be
// restored under another name.  Entries escaping root/world are refused.
func Extract(src, root, world string, progress Progress) error {
	f, e := os.Open(src)
	if e != nil {
		return e
	}
	defer f.Close()

	zr, e := zstd.NewReader(f)
	if e != nil {
		return e
	}
	defer zr.Close()

	base := filepath.Join(root, world)
	if e := os.MkdirAll(base, 0755); e != nil {
		return e
	}

	tr := tar.NewReader(zr)
	for {
		hdr, e := tr.Next()
		if e == io.EOF {
			return nil
		}
		if e != nil {
			return e
		}

		name := strings.TrimPrefix(path.Clean("/"+hdr.Name), "/")
		rest := ""
		if idx := strings.IndexByte(name, '/'); idx >= 0 {
			rest = name[idx+1:]
		}
		target := filepath.Join(base, filepath.FromSlash(rest))
		if target != base && !strings.HasPrefix(target, base+string(os.PathSeparator)) {
			return fmt.Errorf("illegal path %q in archive", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if e := os.MkdirAll(target, 0755); e != nil {
				return e
			}
		case tar.TypeReg:
			if e := os.MkdirAll(filepath.Dir(target), 0755); e != nil {
				return e
			}
			if e := writeFile(target, tr, hdr.FileInfo().Mode().Perm()); e != nil {
				return e
			}
		default:
			continue
		}
		progress.report(path.Join(world, rest))
	}
}

func writeFile(name string, r io.Reader, mode os.FileMode) error {
	if mode == 0 {
		mode = 0644
	}
	f, e := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if e != nil {
		return e
	}
	if _, e := io.Copy(f, r); e != nil {
		f.Close()
		return e
	}
	return f.Close()
}

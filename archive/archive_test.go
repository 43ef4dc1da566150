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

package archive

import (
	"archive/tar"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	. "github.com/smartystreets/goconvey/convey"
)

func writeTree(root string, files map[string]string) {
	for name, body := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		So(os.MkdirAll(filepath.Dir(p), 0755), ShouldBeNil)
		So(os.WriteFile(p, []byte(body), 0644), ShouldBeNil)
	}
}

func TestCreateExtract(t *testing.T) {
	Convey("Archive a world and restore it elsewhere", t, func() {
		root := t.TempDir()
		writeTree(root, map[string]string{
			"world/level.dat":         "level",
			"world/region/r.0.0.mca":  "region data",
			"world/data/raids.dat":    "raids",
			"other/should-not-appear": "x",
		})
		dst := filepath.Join(root, "world-snapshot-1"+Ext)

		var names []string
		e := Create(dst, root, "world", func(n string) { names = append(names, n) })
		So(e, ShouldBeNil)
		So(names, ShouldContain, "world/level.dat")
		So(names, ShouldContain, "world/region/r.0.0.mca")
		So(names, ShouldNotContain, "other/should-not-appear")

		_, e = os.Stat(dst + ".part")
		So(os.IsNotExist(e), ShouldBeTrue)

		Convey("Extract renames the top directory", func() {
			e := Extract(dst, root, "restored", nil)
			So(e, ShouldBeNil)
			b, e := os.ReadFile(filepath.Join(root, "restored", "region", "r.0.0.mca"))
			So(e, ShouldBeNil)
			So(string(b), ShouldEqual, "region data")
			b, e = os.ReadFile(filepath.Join(root, "restored", "level.dat"))
			So(e, ShouldBeNil)
			So(string(b), ShouldEqual, "level")
		})

		Convey("Extract of a missing archive fails", func() {
			e := Extract(filepath.Join(root, "nope"+Ext), root, "world", nil)
			So(e, ShouldNotBeNil)
		})
	})

	Convey("A missing world leaves no archive behind", t, func() {
		root := t.TempDir()
		dst := filepath.Join(root, "gone"+Ext)
		e := Create(dst, root, "gone", nil)
		So(e, ShouldNotBeNil)
		_, e = os.Stat(dst)
		So(os.IsNotExist(e), ShouldBeTrue)
		_, e = os.Stat(dst + ".part")
		So(os.IsNotExist(e), ShouldBeTrue)
	})
}

func TestExtractRefusesEscapes(t *testing.T) {
	Convey("Entries cannot climb out of the world", t, func() {
		root := t.TempDir()
		src := filepath.Join(root, "evil"+Ext)

		f, e := os.Create(src)
		So(e, ShouldBeNil)
		zw, e := zstd.NewWriter(f)
		So(e, ShouldBeNil)
		tw := tar.NewWriter(zw)
		body := []byte("gotcha")
		So(tw.WriteHeader(&tar.Header{
			Name:     "world/../../escaped",
			Mode:     0644,
			Size:     int64(len(body)),
			Typeflag: tar.TypeReg,
		}), ShouldBeNil)
		_, e = tw.Write(body)
		So(e, ShouldBeNil)
		So(tw.Close(), ShouldBeNil)
		So(zw.Close(), ShouldBeNil)
		So(f.Close(), ShouldBeNil)

		dest := filepath.Join(root, "inner")
		So(os.MkdirAll(dest, 0755), ShouldBeNil)
		e = Extract(src, dest, "world", nil)
		So(e, ShouldNotBeNil)

		_, e = os.Stat(filepath.Join(root, "escaped"))
		So(os.IsNotExist(e), ShouldBeTrue)
		_, e = os.Stat(filepath.Join(dest, "escaped"))
		So(os.IsNotExist(e), ShouldBeTrue)
	})
}

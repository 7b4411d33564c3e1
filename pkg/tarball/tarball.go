/*
Copyright the Varco contributors 2023

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package tarball packs scan directories into gzipped tarballs and back.
// The artifacts endpoint streams EncodeDir output; `varco retrieve` feeds
// the stream to DecodeTarball.
package tarball

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// EncodeDir writes the directory's regular files and subdirectories as a
// gzipped tarball. Entry names are relative to dir with Unix separators, so
// decoding under any base directory reproduces the layout.
func EncodeDir(dir string, w io.Writer) error {
	if _, err := os.Stat(dir); err != nil {
		return errors.Wrapf(err, "tar unable to stat directory %v", dir)
	}

	gzw := gzip.NewWriter(w)
	defer gzw.Close()
	tw := tar.NewWriter(gzw)
	defer tw.Close()

	return filepath.Walk(dir, func(file string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if filepath.Clean(file) == filepath.Clean(dir) {
			return nil
		}
		if !fi.Mode().IsRegular() && !fi.Mode().IsDir() {
			return nil
		}

		header, err := tar.FileInfoHeader(fi, fi.Name())
		if err != nil {
			return errors.Wrapf(err, "creating file info header %v", fi.Name())
		}
		rel, err := filepath.Rel(dir, file)
		if err != nil {
			return errors.Wrapf(err, "relativizing %v", file)
		}
		header.Name = filepath.ToSlash(rel)

		if err := tw.WriteHeader(header); err != nil {
			return errors.Wrapf(err, "writing header for tarball %v", header.Name)
		}
		if !fi.Mode().IsRegular() {
			return nil
		}

		f, err := os.Open(file)
		if err != nil {
			return errors.Wrapf(err, "opening file %v for writing into tarball", file)
		}
		defer f.Close()

		_, err = io.Copy(tw, f)
		return errors.Wrapf(err, "copying file %v contents into tarball", file)
	})
}

// DecodeTarball extracts a gzipped tarball under baseDir. On error the
// input may be only partially consumed. Directories and regular files only;
// anything that would escape baseDir is rejected.
func DecodeTarball(reader io.Reader, baseDir string) error {
	gzStream, err := gzip.NewReader(reader)
	if err != nil {
		return errors.Wrap(err, "couldn't uncompress reader")
	}
	defer gzStream.Close()

	tarchive := tar.NewReader(gzStream)
	for {
		header, err := tarchive.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrap(err, "couldn't read tarball from gzip")
		}

		name := path.Clean(header.Name)
		if !noTraversal(name) {
			return errors.Errorf("unsafe path in tarball entry: %v", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(filepath.Join(baseDir, name), os.FileMode(header.Mode)); err != nil {
				return errors.Wrap(err, "extracting tarball (mkdir)")
			}
		case tar.TypeReg:
			filePath := filepath.Join(baseDir, name)
			// The directory entry should come first, but some tarballs are
			// malformed.
			if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
				return errors.Wrap(err, "extracting tarball (mkdir)")
			}
			file, err := os.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(header.Mode))
			if err != nil {
				return errors.Wrap(err, "extracting tarball (open)")
			}
			if _, err := io.CopyN(file, tarchive, header.Size); err != nil {
				file.Close()
				return errors.Wrap(err, "extracting tarball (copy)")
			}
			file.Close()
		default:
			// Symlinks and special files never appear in scan directories;
			// skip rather than risk traversal.
		}
	}

	return nil
}

// noTraversal rejects absolute paths and anything containing "..". Scan
// directories never need either, so dead simple beats clever here.
func noTraversal(candidate string) bool {
	if filepath.IsAbs(candidate) {
		return false
	}
	return !strings.Contains(candidate, "..")
}

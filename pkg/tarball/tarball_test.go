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

package tarball

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeScanDir lays out a directory shaped like a finished scan.
func writeScanDir(t *testing.T) (string, map[string]string) {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"summary.json":                       `{"scan_id":"abc"}`,
		"config.json":                        `{"url":"https://example.com"}`,
		"events.ndjson":                      `{"seq":1,"type":"scan_started"}` + "\n",
		"raw/example-com-wave.json":          `{"categories":{}}`,
		"raw/example-com-lighthouse.json":    `{"audits":{}}`,
		"raw/example-com-chi-siamo-axe.json": `{"violations":[]}`,
	}
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	return dir, files
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	src, files := writeScanDir(t)

	var buf bytes.Buffer
	if err := EncodeDir(src, &buf); err != nil {
		t.Fatalf("EncodeDir: %v", err)
	}

	dst := t.TempDir()
	if err := DecodeTarball(&buf, dst); err != nil {
		t.Fatalf("DecodeTarball: %v", err)
	}

	for name, want := range files {
		got, err := os.ReadFile(filepath.Join(dst, filepath.FromSlash(name)))
		if err != nil {
			t.Errorf("missing %v after round trip: %v", name, err)
			continue
		}
		if string(got) != want {
			t.Errorf("%v: expected %q, got %q", name, want, got)
		}
	}
}

func TestEncodeDirMissing(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodeDir(filepath.Join(t.TempDir(), "nope"), &buf); err == nil {
		t.Error("expected an error for a missing directory")
	}
}

func TestDecodeTarballGarbage(t *testing.T) {
	if err := DecodeTarball(bytes.NewReader([]byte("not a gzip stream")), t.TempDir()); err == nil {
		t.Error("expected an error for a non-gzip stream")
	}
}

// buildTarball assembles a gzipped tarball from explicit headers so tests
// can produce shapes EncodeDir never would.
func buildTarball(t *testing.T, entries []tar.Header, bodies map[string][]byte) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	gz := gzip.NewWriter(buf)
	tw := tar.NewWriter(gz)
	for i := range entries {
		entries[i].ModTime = time.Now()
		if err := tw.WriteHeader(&entries[i]); err != nil {
			t.Fatalf("header: %v", err)
		}
		if body, ok := bodies[entries[i].Name]; ok {
			if _, err := tw.Write(body); err != nil {
				t.Fatalf("body: %v", err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return buf
}

func TestDecodeTarballRejectsTraversal(t *testing.T) {
	testCases := []struct {
		desc string
		name string
	}{
		{"parent escape", "../evil.json"},
		{"nested parent escape", "raw/../../evil.json"},
		{"absolute path", "/etc/evil.json"},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			body := []byte("evil")
			buf := buildTarball(t, []tar.Header{{
				Name:     tc.name,
				Mode:     0644,
				Typeflag: tar.TypeReg,
				Size:     int64(len(body)),
			}}, map[string][]byte{tc.name: body})

			if err := DecodeTarball(buf, t.TempDir()); err == nil {
				t.Error("expected the unsafe entry to be rejected")
			}
		})
	}
}

func TestDecodeTarballSkipsSymlinks(t *testing.T) {
	body := []byte(`{}`)
	buf := buildTarball(t, []tar.Header{
		{Name: "summary.json", Mode: 0644, Typeflag: tar.TypeReg, Size: int64(len(body))},
		{Name: "link.json", Linkname: "summary.json", Mode: 0755, Typeflag: tar.TypeSymlink},
	}, map[string][]byte{"summary.json": body})

	dst := t.TempDir()
	if err := DecodeTarball(buf, dst); err != nil {
		t.Fatalf("DecodeTarball: %v", err)
	}
	if _, err := os.ReadFile(filepath.Join(dst, "summary.json")); err != nil {
		t.Errorf("expected the regular file: %v", err)
	}
	if _, err := os.Lstat(filepath.Join(dst, "link.json")); !os.IsNotExist(err) {
		t.Errorf("expected the symlink to be skipped, got %v", err)
	}
}

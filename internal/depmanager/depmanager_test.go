package depmanager

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/ulikunitz/xz"
)

func TestParseSHA256Sums(t *testing.T) {
	tests := []struct {
		name string
		body string
		want map[string]string
	}{
		{
			name: "plain",
			body: "d2b0e04a2a54a71e0d3c9c38bcbd8e6f0c4d4c85e3a0c21b6a1d0e9a2a54a71e  yt-dlp_linux\n",
			want: map[string]string{"yt-dlp_linux": "d2b0e04a2a54a71e0d3c9c38bcbd8e6f0c4d4c85e3a0c21b6a1d0e9a2a54a71e"},
		},
		{
			name: "binary mode star and path prefix",
			body: "D2B0E04A2A54A71E0D3C9C38BCBD8E6F0C4D4C85E3A0C21B6A1D0E9A2A54A71E *dist/ffmpeg-master-latest-linux64-gpl.tar.xz\n",
			want: map[string]string{"ffmpeg-master-latest-linux64-gpl.tar.xz": "d2b0e04a2a54a71e0d3c9c38bcbd8e6f0c4d4c85e3a0c21b6a1d0e9a2a54a71e"},
		},
		{
			name: "garbage lines skipped",
			body: "not a sums line\nshort  file\n\n",
			want: map[string]string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseSHA256Sums(tt.body)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d entries, got %d: %v", len(tt.want), len(got), got)
			}
			for filename, sum := range tt.want {
				if got[filename] != sum {
					t.Errorf("sum for %q = %q, want %q", filename, got[filename], sum)
				}
			}
		})
	}
}

// writeTarXZ builds a tar.xz archive containing the given files.
func writeTarXZ(t *testing.T, path string, files map[string]string) {
	t.Helper()

	var buf bytes.Buffer

	xzWriter, err := xz.NewWriter(&buf)
	if err != nil {
		t.Fatalf("xz writer: %v", err)
	}

	tarWriter := tar.NewWriter(xzWriter)
	for name, content := range files {
		hdr := &tar.Header{
			Name:     name,
			Mode:     0o755,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}
		if err := tarWriter.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header: %v", err)
		}
		if _, err := tarWriter.Write([]byte(content)); err != nil {
			t.Fatalf("tar write: %v", err)
		}
	}

	if err := tarWriter.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := xzWriter.Close(); err != nil {
		t.Fatalf("close xz: %v", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write archive: %v", err)
	}
}

func TestExtractFromTarXZ(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "ffmpeg.tar.xz")

	writeTarXZ(t, archive, map[string]string{
		"ffmpeg-master-latest-linux64-gpl/bin/ffmpeg":  "fake ffmpeg",
		"ffmpeg-master-latest-linux64-gpl/bin/ffprobe": "fake ffprobe",
		"ffmpeg-master-latest-linux64-gpl/LICENSE.txt": "license",
	})

	m := &Manager{}
	destDir := filepath.Join(dir, "bins")
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		t.Fatal(err)
	}

	err := m.extractFromTarXZ(archive, destDir, map[string]struct{}{"ffmpeg": {}, "ffprobe": {}})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	for _, name := range []string{"ffmpeg", "ffprobe"} {
		data, err := os.ReadFile(filepath.Join(destDir, name))
		if err != nil {
			t.Fatalf("read extracted %s: %v", name, err)
		}
		if want := "fake " + name; string(data) != want {
			t.Errorf("extracted %s = %q, want %q", name, data, want)
		}
	}

	if _, err := os.Stat(filepath.Join(destDir, "LICENSE.txt")); !os.IsNotExist(err) {
		t.Error("expected non-target files to be skipped")
	}
}

func TestExtractFromTarXZNoTargets(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "empty.tar.xz")

	writeTarXZ(t, archive, map[string]string{"README": "nothing useful"})

	m := &Manager{}

	err := m.extractFromTarXZ(archive, dir, map[string]struct{}{"ffmpeg": {}})
	if err == nil {
		t.Error("expected error when no target files found")
	}
}

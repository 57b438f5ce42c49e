// Package depmanager handles binary dependency management for external tools.
// It downloads and maintains the yt-dlp and ffmpeg binaries the download
// engine shells out to. Checksums are used only to detect when new versions
// are available, not to verify downloads.
package depmanager

import (
	"archive/tar"
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"clipd/internal/config"
	"clipd/internal/errs"

	"github.com/ulikunitz/xz"
)

// BinaryName represents the name of a binary dependency.
type BinaryName string

// Binary dependency names.
const (
	BinaryYTdlp   BinaryName = "yt-dlp"
	BinaryFFmpeg  BinaryName = "ffmpeg"
	BinaryFFprobe BinaryName = "ffprobe"
)

const (
	platformLinux = "linux"
	archARM64     = "arm64"
	archAMD64     = "amd64"

	// downloadTimeout is the HTTP client timeout for downloading binaries.
	downloadTimeout = 10 * time.Minute
	// filePermExecutable is the file permission for executable binaries.
	filePermExecutable = 0o755
	// sha256HexLength is the expected length of a SHA256 hex string.
	sha256HexLength = 64
	// sha256SumsFieldCount is the expected field count in SHA256SUMS format.
	sha256SumsFieldCount = 2
	// savedSumsFilename is the filename for saved checksums.
	savedSumsFilename = ".sha256sums.json"
)

// Platform represents the OS and architecture combination.
type Platform struct {
	OS   string
	Arch string
}

// String returns the platform string in format "os/arch".
func (p Platform) String() string {
	return p.OS + "/" + p.Arch
}

// Manager manages binary dependencies.
type Manager struct {
	log      *slog.Logger
	cfg      *config.Config
	platform Platform
	client   *http.Client

	mu        sync.RWMutex
	shaSums   map[string]string     // filename -> sha256 hash (fetched from remote)
	savedSums map[string]string     // filename -> sha256 hash (saved from previous run)
	binPaths  map[BinaryName]string // binary name -> installed path
}

// New creates a new dependency manager.
func New(log *slog.Logger, cfg *config.Config) *Manager {
	return &Manager{
		log: log.With(slog.String("package", "depmanager")),
		cfg: cfg,
		platform: Platform{
			OS:   runtime.GOOS,
			Arch: runtime.GOARCH,
		},
		client: &http.Client{
			Timeout: downloadTimeout,
		},
		shaSums:   make(map[string]string),
		savedSums: make(map[string]string),
		binPaths:  make(map[BinaryName]string),
	}
}

// Start prepares the binaries. In system mode they are resolved from PATH;
// otherwise they are installed into the bins dir, which is then prepended to
// PATH so the engine's subprocesses find them, and a background update
// checker is started.
func (m *Manager) Start(ctx context.Context) error {
	if m.cfg.DepManager.UseSystemBinaries {
		return m.SetSystemBinaries()
	}

	if err := m.InstallAll(ctx); err != nil {
		return fmt.Errorf("install binaries: %w", err)
	}

	if err := os.Setenv("PATH", m.cfg.DepManager.BinsDir+string(os.PathListSeparator)+os.Getenv("PATH")); err != nil {
		return fmt.Errorf("prepend bins dir to PATH: %w", err)
	}

	m.StartUpdateChecker(ctx)

	return nil
}

// Ready reports whether all required binaries are resolved.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.binPaths[BinaryYTdlp] != "" && m.binPaths[BinaryFFmpeg] != ""
}

// SetSystemBinaries resolves binaries from the system PATH.
func (m *Manager) SetSystemBinaries() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, binary := range []BinaryName{BinaryYTdlp, BinaryFFmpeg, BinaryFFprobe} {
		path, err := exec.LookPath(string(binary))
		if err != nil {
			return fmt.Errorf("%s not in system PATH: %w", binary, errs.ErrBinaryNotFound)
		}

		m.binPaths[binary] = path
	}

	return nil
}

// InstallAll downloads all required binaries if needed.
// On first run, if binaries exist, skips all downloads.
func (m *Manager) InstallAll(ctx context.Context) error {
	log := m.log

	err := os.MkdirAll(m.cfg.DepManager.BinsDir, filePermExecutable)
	if err != nil {
		return fmt.Errorf("create bins directory: %w", err)
	}

	if err := m.loadSavedSums(); err != nil {
		log.DebugContext(ctx, "no saved checksums found, first run", slog.Any("error", err))
	}

	for _, binary := range []BinaryName{BinaryFFmpeg, BinaryYTdlp} {
		if m.isBinaryInstalled(binary) {
			m.setBinaryPath(binary)
			log.DebugContext(ctx, "binary already exists", slog.String("binary", string(binary)))

			continue
		}

		if err := m.downloadAndInstall(ctx, binary); err != nil {
			return fmt.Errorf("download and install %s: %w", binary, err)
		}
	}

	log.InfoContext(ctx, "all binaries are installed", slog.Any("binaries", m.binPaths))

	if err := m.FetchSHASums(ctx); err != nil {
		log.WarnContext(ctx, "failed to fetch checksums", slog.Any("error", err))

		return nil
	}

	if err := m.saveSums(); err != nil {
		log.WarnContext(ctx, "failed to save checksums", slog.Any("error", err))
	}

	return nil
}

// InstalledPath returns the resolved path for a binary, or empty if not installed.
func (m *Manager) InstalledPath(name BinaryName) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.binPaths[name]
}

func (m *Manager) binaryPath(name BinaryName) string {
	return filepath.Join(m.cfg.DepManager.BinsDir, string(name))
}

func (m *Manager) isBinaryInstalled(name BinaryName) bool {
	targets := binaryFiles(name)
	for filename := range targets {
		if _, err := os.Stat(filepath.Join(m.cfg.DepManager.BinsDir, filename)); err != nil {
			return false
		}
	}

	return true
}

func (m *Manager) setBinaryPath(name BinaryName) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.binPaths[name] = m.binaryPath(name)
	if name == BinaryFFmpeg {
		m.binPaths[BinaryFFprobe] = m.binaryPath(BinaryFFprobe)
	}
}

// binaryFiles returns the bins-dir filenames a binary install is expected to produce.
func binaryFiles(name BinaryName) map[string]struct{} {
	switch name {
	case BinaryFFmpeg:
		return map[string]struct{}{"ffmpeg": {}, "ffprobe": {}}
	default:
		return map[string]struct{}{string(name): {}}
	}
}

func (m *Manager) downloadURL(name BinaryName) (string, error) {
	dep := m.cfg.DepManager

	if m.platform.OS != platformLinux {
		return "", fmt.Errorf("%s on %s: %w", name, m.platform, errs.ErrUnsupportedPlatform)
	}

	switch {
	case name == BinaryYTdlp && m.platform.Arch == archAMD64:
		return dep.YTdlpLinuxAMD64, nil
	case name == BinaryYTdlp && m.platform.Arch == archARM64:
		return dep.YTdlpLinuxARM64, nil
	case name == BinaryFFmpeg && m.platform.Arch == archAMD64:
		return dep.FFmpegLinuxAMD64, nil
	case name == BinaryFFmpeg && m.platform.Arch == archARM64:
		return dep.FFmpegLinuxARM64, nil
	default:
		return "", fmt.Errorf("%s on %s: %w", name, m.platform, errs.ErrUnsupportedPlatform)
	}
}

func (m *Manager) downloadAndInstall(ctx context.Context, name BinaryName) error {
	url, err := m.downloadURL(name)
	if err != nil {
		return err
	}

	m.log.InfoContext(ctx, "downloading binary", slog.String("binary", string(name)), slog.String("url", url))

	tmp, err := os.CreateTemp("", "clipd-dep-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	defer os.Remove(tmpPath)

	if err := m.fetchToFile(ctx, url, tmp); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("fetch %s: %w", url, err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if strings.HasSuffix(url, ".tar.xz") {
		if err := m.extractFromTarXZ(tmpPath, m.cfg.DepManager.BinsDir, binaryFiles(name)); err != nil {
			return fmt.Errorf("extract %s: %w", name, err)
		}
	} else {
		dest := m.binaryPath(name)
		if err := copyFile(tmpPath, dest, filePermExecutable); err != nil {
			return fmt.Errorf("install %s: %w", name, err)
		}
	}

	m.setBinaryPath(name)

	return nil
}

func (m *Manager) fetchToFile(ctx context.Context, url string, dst io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if _, err := io.Copy(dst, resp.Body); err != nil {
		return fmt.Errorf("copy body: %w", err)
	}

	return nil
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("create dest: %w", err)
	}

	_, err = io.Copy(out, in)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		return fmt.Errorf("copy: %w", err)
	}

	return nil
}

func (m *Manager) extractFromTarXZ(tarXZPath, destDir string, targets map[string]struct{}) error {
	file, err := os.Open(tarXZPath)
	if err != nil {
		return fmt.Errorf("open tar.xz: %w", err)
	}
	defer file.Close()

	xzReader, err := xz.NewReader(file)
	if err != nil {
		return fmt.Errorf("create xz reader: %w", err)
	}

	return extractTarSelected(xzReader, destDir, targets)
}

func extractTarSelected(reader io.Reader, destDir string, targets map[string]struct{}) error {
	tarReader := tar.NewReader(reader)
	extracted := 0

	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}

		if err != nil {
			return fmt.Errorf("read tar header: %w", err)
		}

		if header.Typeflag != tar.TypeReg {
			continue
		}

		filename := filepath.Base(header.Name)
		if _, ok := targets[filename]; !ok {
			continue
		}

		destPath := filepath.Join(destDir, filename)

		outFile, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePermExecutable)
		if err != nil {
			return fmt.Errorf("create dest file: %w", err)
		}

		_, err = io.Copy(outFile, tarReader) //nolint:gosec // trusted release archives
		outFile.Close()

		if err != nil {
			return fmt.Errorf("extract file: %w", err)
		}

		extracted++

		if extracted == len(targets) {
			return nil
		}
	}

	if extracted == 0 {
		return fmt.Errorf("no target files found in tar archive")
	}

	return nil
}

// StartUpdateChecker starts a background goroutine that periodically checks
// for updates by comparing fetched checksums with saved ones.
func (m *Manager) StartUpdateChecker(ctx context.Context) {
	if m.cfg.DepManager.UpdateInterval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(m.cfg.DepManager.UpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.checkAndUpdate(ctx)
			}
		}
	}()
}

func (m *Manager) checkAndUpdate(ctx context.Context) {
	log := m.log

	if err := m.FetchSHASums(ctx); err != nil {
		log.WarnContext(ctx, "update check: fetch checksums", slog.Any("error", err))

		return
	}

	m.mu.RLock()
	changed := make([]BinaryName, 0, 2)

	for _, binary := range []BinaryName{BinaryFFmpeg, BinaryYTdlp} {
		for filename := range binaryFiles(binary) {
			if m.shaSums[filename] != "" && m.shaSums[filename] != m.savedSums[filename] {
				changed = append(changed, binary)

				break
			}
		}
	}
	m.mu.RUnlock()

	for _, binary := range changed {
		log.InfoContext(ctx, "binary update available", slog.String("binary", string(binary)))

		if err := m.downloadAndInstall(ctx, binary); err != nil {
			log.ErrorContext(ctx, "update binary", slog.String("binary", string(binary)), slog.Any("error", err))

			return
		}
	}

	if len(changed) == 0 {
		log.DebugContext(ctx, "binaries are up to date")

		return
	}

	m.mu.Lock()
	for filename, sum := range m.shaSums {
		m.savedSums[filename] = sum
	}
	m.mu.Unlock()

	if err := m.saveSums(); err != nil {
		log.WarnContext(ctx, "save checksums after update", slog.Any("error", err))
	}
}

// FetchSHASums fetches and parses SHA256 sums from the configured URLs.
func (m *Manager) FetchSHASums(ctx context.Context) error {
	urls := []string{m.cfg.DepManager.FFmpegSHA256SumsURL, m.cfg.DepManager.YTdlpSHA256SumsURL}

	sums := make(map[string]string)

	for _, url := range urls {
		if url == "" {
			continue
		}

		var buf strings.Builder
		if err := m.fetchToFile(ctx, url, &buf); err != nil {
			return fmt.Errorf("fetch sums %s: %w", url, err)
		}

		for filename, sum := range ParseSHA256Sums(buf.String()) {
			sums[filename] = sum
		}
	}

	m.mu.Lock()
	m.shaSums = sums
	m.mu.Unlock()

	return nil
}

// ParseSHA256Sums parses "hash  filename" lines in the common SHA256SUMS format.
func ParseSHA256Sums(body string) map[string]string {
	sums := make(map[string]string)

	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != sha256SumsFieldCount {
			continue
		}

		hash, filename := fields[0], fields[1]
		if len(hash) != sha256HexLength {
			continue
		}

		// Some sums files prefix filenames with "*" for binary mode.
		sums[strings.TrimPrefix(filepath.Base(filename), "*")] = strings.ToLower(hash)
	}

	return sums
}

func (m *Manager) savedSumsPath() string {
	return filepath.Join(m.cfg.DepManager.BinsDir, savedSumsFilename)
}

func (m *Manager) loadSavedSums() error {
	data, err := os.ReadFile(m.savedSumsPath())
	if err != nil {
		return fmt.Errorf("read saved sums: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := json.Unmarshal(data, &m.savedSums); err != nil {
		return fmt.Errorf("parse saved sums: %w", err)
	}

	return nil
}

func (m *Manager) saveSums() error {
	m.mu.Lock()

	if len(m.savedSums) == 0 {
		for filename, sum := range m.shaSums {
			m.savedSums[filename] = sum
		}
	}

	data, err := json.Marshal(m.savedSums)
	m.mu.Unlock()

	if err != nil {
		return fmt.Errorf("marshal sums: %w", err)
	}

	if err := os.WriteFile(m.savedSumsPath(), data, 0o644); err != nil {
		return fmt.Errorf("write sums: %w", err)
	}

	return nil
}

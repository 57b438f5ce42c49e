package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"clipd/internal/config"
	"clipd/internal/consts"
	"clipd/internal/depmanager"
	"clipd/internal/entity"
	"clipd/internal/errs"
	"clipd/internal/observability"
	"clipd/pkg/calc"
	"clipd/pkg/maths"
	"clipd/pkg/ptr"

	"github.com/google/uuid"
	"github.com/lrstanley/go-ytdlp"
)

const fullProgress = 100

var (
	maxJSONSize = 10 * 1024 * 1024                                       // 10 MiB scanner buffer
	bufSize     = 4096                                                   // 4 KiB buffer size
	reFilepath  = regexp.MustCompile(`(?i)^[^\{\[\n].*\.[a-z0-9]{1,6}$`) // file path

	// changing this may break parseStdout().
	defaultPrintAfterMove = "after_move:filepath"
)

// YTdlp drives downloads through the yt-dlp binary.
type YTdlp struct {
	log     *slog.Logger
	cfg     *config.Config
	deps    *depmanager.Manager
	metrics *observability.Metrics

	events chan Event

	mu      sync.Mutex
	cancels map[string]context.CancelFunc // engine id : cancel func
}

var _ Engine = (*YTdlp)(nil)

// NewYTdlp creates a new yt-dlp engine instance.
func NewYTdlp(log *slog.Logger, cfg *config.Config, deps *depmanager.Manager, metrics *observability.Metrics) *YTdlp {
	return &YTdlp{
		log:     log.With(slog.String("package", "engine"), slog.String("engine", "ytdlp")),
		cfg:     cfg,
		deps:    deps,
		metrics: metrics,
		events:  make(chan Event, consts.DefaultEngineEventBuffer),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Events returns the engine's event stream.
func (d *YTdlp) Events() <-chan Event {
	return d.events
}

// Start begins a download. The returned id keys all subsequent events for it.
// The download runs detached from the caller's context; cancellation goes
// through Cancel.
func (d *YTdlp) Start(ctx context.Context, url string, opts entity.Options) (string, error) {
	if d.deps != nil && !d.deps.Ready() {
		d.metrics.RecordEngineError("start", "binary_missing")

		return "", fmt.Errorf("engine start: %w", errs.ErrBinaryNotFound)
	}

	engineID := uuid.NewString()

	runCtx := context.WithoutCancel(ctx)

	var cancel context.CancelFunc
	if d.cfg.Engine.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, d.cfg.Engine.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(runCtx)
	}

	d.mu.Lock()
	d.cancels[engineID] = cancel
	d.mu.Unlock()

	d.metrics.RecordEngineRequest("start", "accepted")

	go d.run(runCtx, engineID, url, opts)

	return engineID, nil
}

// Cancel kills the download for the given engine id. False means the id is
// unknown (already finished, or never started) and nothing was cancelled.
func (d *YTdlp) Cancel(engineID string) bool {
	d.mu.Lock()
	cancel, ok := d.cancels[engineID]
	if ok {
		delete(d.cancels, engineID)
	}
	d.mu.Unlock()

	if !ok {
		return false
	}

	cancel()

	d.metrics.RecordEngineRequest("cancel", "ok")

	return true
}

func (d *YTdlp) unregister(engineID string) {
	d.mu.Lock()
	cancel, ok := d.cancels[engineID]
	if ok {
		delete(d.cancels, engineID)
	}
	d.mu.Unlock()

	if ok {
		cancel()
	}
}

func (d *YTdlp) run(ctx context.Context, engineID, url string, opts entity.Options) {
	defer d.unregister(engineID)

	log := d.log.With(slog.String("engine_id", engineID), slog.String("url", url))

	start := time.Now()
	stopTimer := d.metrics.DownloadTimer()

	command := d.buildCommand(opts, engineID, start)

	res, err := command.Run(ctx, url)
	if err != nil {
		errType := classifyRunError(err)
		d.metrics.RecordEngineError("run", errType)

		if errors.Is(err, context.Canceled) {
			// Cancelled through Cancel; the orchestrator already dropped the
			// job, so a failed event would only be logged as an orphan.
			log.Debug("download cancelled")

			return
		}

		log.Error("ytdlp run", slog.Any("error", err), slog.Any("result", Result{res}))
		d.emit(Event{
			EngineID: engineID,
			Kind:     EventFailed,
			Status:   entity.StatusFailed,
			Error:    fmt.Sprintf("ytdlp run: %v", err),
		})

		return
	}

	stopTimer()

	filePath := filePathFromResult(res)

	d.metrics.RecordEngineRequest("run", "ok")
	log.Info("download finished", slog.String("file_path", filePath), slog.Duration("took", time.Since(start)))

	d.emit(Event{
		EngineID: engineID,
		Kind:     EventCompleted,
		Status:   entity.StatusCompleted,
		Progress: fullProgress,
		FilePath: filePath,
	})
}

func (d *YTdlp) buildCommand(opts entity.Options, engineID string, start time.Time) *ytdlp.Command {
	var lastBytes int64
	lastTime := start

	progressFn := func(prog ytdlp.ProgressUpdate) {
		downloaded := int64(prog.DownloadedBytes)
		total := int64(prog.TotalBytes)

		now := time.Now()
		speed := calc.Speed(downloaded-lastBytes, now.Sub(lastTime))
		lastBytes, lastTime = downloaded, now

		status := entity.StatusDownloading
		if string(prog.Status) == "post_processing" {
			status = entity.StatusProcessing
		}

		d.emitProgress(Event{
			EngineID:        engineID,
			Kind:            EventProgress,
			Status:          status,
			Progress:        calc.Progress(downloaded, total),
			DownloadedBytes: downloaded,
			TotalBytes:      total,
			Speed:           speed,
			ETA:             int64(calc.ETA(downloaded, total, start).Seconds()),
		})
	}

	command := ytdlp.New().
		CacheDir(d.cfg.Dir.Cache).
		NoPlaylist().
		RestrictFilenames().
		Retries(strconv.Itoa(d.cfg.Engine.MaxRetries)).
		ProgressFunc(d.cfg.Engine.ProgressFreq, progressFn).
		PrintJSON().Print(defaultPrintAfterMove).
		Output(d.cfg.Dir.FilenameTemplate)

	command = applyOptions(command, opts)

	if d.cfg.Dir.CookieFile != "" {
		command = command.Cookies(d.cfg.Dir.CookieFile)
	}

	return command
}

// applyOptions maps the orchestrator-opaque options onto yt-dlp flags.
func applyOptions(command *ytdlp.Command, opts entity.Options) *ytdlp.Command {
	if opts.AudioOnly {
		command = command.ExtractAudio()
		if opts.Format != "" {
			command = command.AudioFormat(opts.Format)
		}
	} else if sel := formatSelector(opts); sel != "" {
		command = command.Format(sel)
	}

	if opts.EmbedThumbnail {
		command = command.EmbedThumbnail()
	}

	if opts.EmbedMetadata {
		command = command.EmbedMetadata()
	}

	if opts.DownloadSubtitles {
		command = command.WriteSubs()
		if len(opts.SubtitleLanguages) > 0 {
			command = command.SubLangs(strings.Join(opts.SubtitleLanguages, ","))
		}
		if opts.EmbedSubtitles {
			command = command.EmbedSubs()
		}
	}

	return command
}

// formatSelector builds a yt-dlp -f expression from quality and format hints.
//   - quality "1080", format "mp4" => bv*[height<=1080][ext=mp4]+ba/b[height<=1080]
func formatSelector(opts entity.Options) string {
	if opts.Quality == "" && opts.Format == "" {
		return ""
	}

	var video strings.Builder
	video.WriteString("bv*")

	if opts.Quality != "" {
		fmt.Fprintf(&video, "[height<=%s]", opts.Quality)
	}

	if opts.Format != "" {
		fmt.Fprintf(&video, "[ext=%s]", opts.Format)
	}

	fallback := "b"
	if opts.Quality != "" {
		fallback = fmt.Sprintf("b[height<=%s]", opts.Quality)
	}

	return video.String() + "+ba/" + fallback
}

// FetchInfo resolves video metadata without downloading.
func (d *YTdlp) FetchInfo(ctx context.Context, url string) (entity.VideoInfo, error) {
	command := ytdlp.New().
		CacheDir(d.cfg.Dir.Cache).
		NoPlaylist().
		SkipDownload().
		PrintJSON()

	if d.cfg.Dir.CookieFile != "" {
		command = command.Cookies(d.cfg.Dir.CookieFile)
	}

	res, err := command.Run(ctx, url)
	if err != nil {
		d.metrics.RecordEngineError("fetch_info", classifyRunError(err))

		return entity.VideoInfo{}, fmt.Errorf("ytdlp fetch info: %w", err)
	}

	info, err := res.GetExtractedInfo()
	if err != nil {
		return entity.VideoInfo{}, fmt.Errorf("ytdlp extracted info: %w", err)
	}

	if len(info) == 0 {
		return entity.VideoInfo{}, fmt.Errorf("ytdlp extracted info: empty result")
	}

	d.metrics.RecordEngineRequest("fetch_info", "ok")

	inf := info[0]

	return entity.VideoInfo{
		ID:        inf.ID,
		Title:     ptr.Deref(inf.Title),
		Channel:   ptr.Deref(inf.Channel),
		Thumbnail: ptr.Deref(inf.Thumbnail),
		Duration:  float64(maths.RoundFloat64ToInt64(ptr.Deref(inf.Duration))),
		WebURL:    ptr.Deref(inf.WebpageURL),
		Extractor: ptr.Deref(inf.Extractor),
	}, nil
}

func (d *YTdlp) emit(ev Event) {
	d.events <- ev
}

// emitProgress drops the update when the stream is saturated; the next tick
// carries fresher numbers anyway.
func (d *YTdlp) emitProgress(ev Event) {
	select {
	case d.events <- ev:
	default:
		d.log.Warn("engine event stream full, dropping progress update",
			slog.String("engine_id", ev.EngineID))
	}
}

func classifyRunError(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "process"
	}
}

// Result wraps ytdlp.Result for custom logging.
type Result struct {
	*ytdlp.Result
}

// LogValue implements the slog.LogValuer interface for custom logging of Result.
func (r Result) LogValue() slog.Value {
	if r.Result == nil {
		return slog.GroupValue(slog.String("error", "nil result"))
	}

	return slog.GroupValue(
		slog.String("executable", r.Executable),
		slog.String("args", fmt.Sprintf("%v", r.Args)),
		slog.String("stderr", r.Stderr),
	)
}

// resultJSON is the subset of yt-dlp's JSON output the engine cares about.
type resultJSON struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Channel  string `json:"channel"`
	Filename string `json:"filename"`
}

// parseStdout parses yt-dlp stdout: one JSON blob per entry, optionally
// followed by the after_move filepath printed on its own line.
func parseStdout(stdout string) []resultJSON {
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	scanner.Buffer(make([]byte, bufSize), maxJSONSize)

	var res []resultJSON

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var r resultJSON
		if err := json.Unmarshal([]byte(line), &r); err == nil {
			res = append(res, r)

			continue
		}

		if reFilepath.MatchString(line) && len(res) > 0 {
			res[len(res)-1].Filename = line
		}
	}

	return res
}

// filePathFromResult extracts the final media path from a finished run.
func filePathFromResult(res *ytdlp.Result) string {
	if res == nil {
		return ""
	}

	results := parseStdout(res.Stdout)
	for i := len(results) - 1; i >= 0; i-- {
		if results[i].Filename != "" {
			return results[i].Filename
		}
	}

	return ""
}

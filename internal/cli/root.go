// Package cli wires the commands of the murmur binary.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/murmurvoice/murmur/internal/audio"
	"github.com/murmurvoice/murmur/internal/clipboard"
	"github.com/murmurvoice/murmur/internal/config"
	"github.com/murmurvoice/murmur/internal/download"
	"github.com/murmurvoice/murmur/internal/logging"
	"github.com/murmurvoice/murmur/internal/output"
	"github.com/murmurvoice/murmur/internal/pipeline"
	"github.com/murmurvoice/murmur/internal/platform"
	"github.com/murmurvoice/murmur/internal/version"
	"github.com/murmurvoice/murmur/internal/whisper"
)

var errInteractiveRequiresTTY = errors.New("interactive recording requires a terminal; use --duration or --immediate")

type appState struct {
	configPath   string
	verbose      bool
	jsonLogs     bool
	quiet        bool
	noProgress   bool
	model        string
	modelDir     string
	language     string
	device       string
	sampleRate   uint32
	autoDownload bool
	duration     time.Duration
	immediate    bool
	autoCopy     bool
	autoPaste    bool
	notify       bool
	copyEmpty    bool
	silenceGate  bool
	silenceDBFS  float64

	cfg    config.Config
	logger *zap.Logger
	out    io.Writer
	stdin  io.Reader

	preflightFn func(ctx context.Context) (whisper.ResolvedModel, error)
	sessionFn   func(ctx context.Context, modelPath string) (string, error)
	deliverFn   func(ctx context.Context, transcript string) error
}

func NewRootCmd() *cobra.Command {
	app := &appState{
		model:        whisper.DefaultModel,
		language:     "auto",
		autoDownload: true,
		autoCopy:     true,
		silenceGate:  true,
		silenceDBFS:  -65,
		out:          os.Stdout,
		stdin:        os.Stdin,
	}
	app.preflightFn = app.ensureModelAvailable
	app.sessionFn = app.runSession
	app.deliverFn = app.deliverTranscript

	cmd := &cobra.Command{
		Use:           "murmur",
		Short:         "Dictate through the microphone and get a whisper transcript",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Resolve().Version,
		PersistentPreRunE: func(c *cobra.Command, _ []string) error {
			return app.initialize(c)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runDefault(cmd.Context())
		},
	}

	cmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	cmd.PersistentFlags().StringVar(&app.configPath, "config", "", "Config file path (default: platform config dir)")
	bindLoggingFlags(cmd, app)
	bindProgressFlag(cmd, app)
	bindModelFlags(cmd, app)
	bindLanguageAndModelDownloadFlags(cmd, app)
	bindAudioFlags(cmd, app)
	bindDeliveryFlags(cmd, app)
	cmd.Flags().DurationVar(&app.duration, "duration", 0, "Record duration, e.g. 10s; 0 means interactive start/stop")
	cmd.Flags().BoolVar(&app.immediate, "immediate", false, "Start recording immediately without waiting for Enter")

	cmd.AddCommand(newDevicesCmd(app))
	cmd.AddCommand(newSetupCmd(app))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func bindLoggingFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().BoolVar(&app.verbose, "verbose", app.verbose, "Enable verbose logs")
	cmd.Flags().BoolVar(&app.quiet, "quiet", app.quiet, "Only log warnings and errors")
	cmd.Flags().BoolVar(&app.jsonLogs, "json", app.jsonLogs, "Enable JSON logging")
}

func bindProgressFlag(cmd *cobra.Command, app *appState) {
	cmd.Flags().BoolVar(&app.noProgress, "no-progress", app.noProgress, "Disable progress indicators")
}

func bindModelFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().StringVar(&app.model, "model", app.model, "Model name or model file path")
	cmd.Flags().StringVar(&app.modelDir, "model-dir", app.modelDir, "Directory where models are stored")
}

func bindLanguageAndModelDownloadFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().StringVar(&app.language, "language", app.language, "Language code (auto|en|de|...) for transcription")
	cmd.Flags().BoolVar(&app.autoDownload, "auto-download", app.autoDownload, "Automatically download missing models")
}

func bindAudioFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().StringVar(&app.device, "device", app.device, "Capture device name (run \"murmur devices\" to list); empty means default")
	cmd.Flags().Uint32Var(&app.sampleRate, "sample-rate", app.sampleRate, "Requested capture sample rate in Hz; 0 means 48000")
	cmd.Flags().BoolVar(&app.silenceGate, "silence-gate", app.silenceGate, "Skip transcription when the recording is near-silent")
	cmd.Flags().Float64Var(&app.silenceDBFS, "silence-threshold-dbfs", app.silenceDBFS, "Silence gate threshold in dBFS")
}

func bindDeliveryFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().BoolVar(&app.autoCopy, "copy", app.autoCopy, "Copy the transcript to the clipboard")
	cmd.Flags().BoolVar(&app.autoPaste, "paste", app.autoPaste, "Paste the transcript into the focused window")
	cmd.Flags().BoolVar(&app.notify, "notify", app.notify, "Show a desktop notification with the transcript")
	cmd.Flags().BoolVar(&app.copyEmpty, "copy-empty", app.copyEmpty, "Copy blank transcripts to the clipboard")
}

// initialize loads the config file and overlays it under any flags the user
// did not set explicitly, then builds the logger.
func (a *appState) initialize(cmd *cobra.Command) error {
	path := a.configPath
	if path == "" {
		resolved, err := config.DefaultPath()
		if err != nil {
			return err
		}
		path = resolved
	}

	cfg, err := config.Load(path, a.logger)
	if err != nil {
		return err
	}
	a.cfg = cfg

	flags := cmd.Flags()
	if !flags.Changed("model") && cfg.Whisper.Model != "" {
		a.model = cfg.Whisper.Model
	}
	if !flags.Changed("model-dir") && cfg.Whisper.ModelDir != "" {
		a.modelDir = cfg.Whisper.ModelDir
	}
	if !flags.Changed("language") && cfg.Whisper.Language != "" {
		a.language = cfg.Whisper.Language
	}
	if !flags.Changed("device") {
		a.device = cfg.Audio.Device
	}
	if !flags.Changed("sample-rate") {
		a.sampleRate = cfg.Audio.SampleRate
	}
	if !flags.Changed("silence-gate") {
		a.silenceGate = cfg.Audio.SilenceGate
	}
	if !flags.Changed("silence-threshold-dbfs") && cfg.Audio.SilenceThresholdDBFS != 0 {
		a.silenceDBFS = cfg.Audio.SilenceThresholdDBFS
	}
	if !flags.Changed("copy") {
		a.autoCopy = cfg.Behaviour.AutoCopy
	}
	if !flags.Changed("paste") {
		a.autoPaste = cfg.Behaviour.AutoPaste
	}
	if !flags.Changed("notify") {
		a.notify = cfg.Behaviour.Notify
	}
	if !flags.Changed("verbose") {
		a.verbose = cfg.Logging.Verbose
	}
	if !flags.Changed("json") {
		a.jsonLogs = cfg.Logging.JSON
	}

	logger, err := logging.New(logging.Options{Verbose: a.verbose, Quiet: a.quiet, JSON: a.jsonLogs})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	a.logger = logger
	a.language = sanitizeLanguage(a.language)
	return nil
}

// runDefault is one dictation session: resolve the model, capture until
// stopped, transcribe, print, deliver.
func (a *appState) runDefault(ctx context.Context) error {
	model, err := a.preflightFn(ctx)
	if err != nil {
		return err
	}

	transcript, err := a.sessionFn(ctx, model.Path)
	if err != nil {
		return err
	}

	fmt.Fprintln(a.outWriter(), transcript)
	if isBlankTranscript(transcript) {
		a.log().Warn(noSpeechHint())
		if !a.copyEmpty {
			return nil
		}
	}

	return a.deliverFn(ctx, transcript)
}

// runSession opens the microphone, records until the user stops (Enter, or
// the --duration timer), and transcribes the captured audio.
func (a *appState) runSession(ctx context.Context, modelPath string) (string, error) {
	capturer, err := audio.NewCapturer(audio.Config{
		SampleRate: a.sampleRate,
		DeviceName: a.device,
		Logger:     a.log(),
	})
	if err != nil {
		return "", err
	}
	defer func() {
		if err := capturer.Close(); err != nil {
			a.log().Warn("failed to close capturer", zap.Error(err))
		}
	}()

	engine, err := whisper.New(modelPath, a.language, a.log())
	if err != nil {
		return "", err
	}

	p := pipeline.New(capturer, engine, a.log())
	defer func() {
		if err := p.Close(); err != nil {
			a.log().Warn("failed to close pipeline", zap.Error(err))
		}
	}()

	interactive := a.duration <= 0
	if interactive && !a.immediate {
		if err := a.waitForEnter("Press Enter to start recording."); err != nil {
			return "", err
		}
	}

	if err := p.StartRecording(); err != nil {
		return "", err
	}

	stopProgress := func() {}
	if interactive {
		stopProgress = startSpinner(a.progressEnabled(), "Recording")
	} else {
		stopProgress = startDurationProgress(a.progressEnabled(), "Recording", a.duration)
	}

	if interactive {
		err = a.waitForEnter("Recording... press Enter to stop.")
	} else {
		err = sleepCtx(ctx, a.duration)
	}
	stopProgress()
	if err != nil {
		_, _ = p.StopRecordingRaw()
		return "", err
	}

	raw, err := p.StopRecordingRaw()
	if err != nil {
		return "", err
	}

	if transcript, skipped := a.silenceGateTranscript(raw); skipped {
		return transcript, nil
	}

	prepared, err := p.PrepareForTranscription(raw)
	if err != nil {
		return "", err
	}

	stopSpinner := startSpinner(a.progressEnabled(), "Transcribing")
	transcript, err := p.TranscribePrepared(prepared)
	stopSpinner()
	if err != nil {
		return "", err
	}

	return transcript, nil
}

func (a *appState) deliverTranscript(ctx context.Context, transcript string) error {
	handler := output.NewHandler(output.Options{
		Copy:   a.autoCopy,
		Paste:  a.autoPaste,
		Notify: a.notify,
	}, a.log())

	if err := handler.Deliver(ctx, transcript); err != nil {
		if errors.Is(err, clipboard.ErrUnavailable) {
			a.log().Warn("clipboard tool unavailable; transcript left on stdout")
			return nil
		}
		a.log().Warn("transcript delivery incomplete; transcript left on stdout", zap.Error(err))
		return nil
	}

	if a.autoCopy || a.autoPaste {
		a.log().Info("transcript delivered")
	}
	return nil
}

func (a *appState) ensureModelAvailable(ctx context.Context) (whisper.ResolvedModel, error) {
	modelDir, err := a.modelStorageDir()
	if err != nil {
		return whisper.ResolvedModel{}, err
	}

	resolved, err := whisper.ResolveModel(a.model, modelDir)
	if err != nil {
		return whisper.ResolvedModel{}, err
	}

	if !resolved.NeedsDownload {
		return resolved, nil
	}

	if !a.autoDownload {
		return whisper.ResolvedModel{}, fmt.Errorf("model %q is missing at %s; run `murmur setup --model %s` or use --auto-download=true", resolved.Name, resolved.Path, resolved.Name)
	}

	a.log().Info("model not found, downloading", zap.String("model", resolved.Name), zap.String("destination", resolved.Path))
	if err := download.DownloadFile(ctx, download.Options{
		URL:            resolved.URL,
		Destination:    resolved.Path,
		ExpectedSHA256: resolved.SHA256,
		NoProgress:     a.noProgress,
		Logger:         a.log(),
	}); err != nil {
		return whisper.ResolvedModel{}, fmt.Errorf("download model %q: %w", resolved.Name, err)
	}

	resolved.NeedsDownload = false
	return resolved, nil
}

func (a *appState) modelStorageDir() (string, error) {
	dir, err := platform.ResolveModelDir(a.modelDir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create model directory %s: %w", dir, err)
	}
	return dir, nil
}

// silenceGateTranscript reports whether the recording is quiet enough to
// skip inference entirely.
func (a *appState) silenceGateTranscript(samples []float32) (string, bool) {
	if !a.silenceGate {
		return "", false
	}

	silent, metrics := audio.IsSilent(samples, a.silenceDBFS)
	if !silent {
		return "", false
	}

	a.log().Info(
		"audio considered silent; skipping transcription",
		zap.Float64("rms_dbfs", metrics.RMSdBFS),
		zap.Float64("peak_dbfs", metrics.PeakdBFS),
		zap.Float64("threshold_dbfs", a.silenceDBFS),
	)

	return blankAudioToken, true
}

func (a *appState) waitForEnter(message string) error {
	if f, ok := a.stdin.(*os.File); ok && !term.IsTerminal(int(f.Fd())) {
		return errInteractiveRequiresTTY
	}

	if message != "" {
		fmt.Fprintln(os.Stderr, message)
	}

	reader := bufio.NewReader(a.stdin)
	_, err := reader.ReadString('\n')
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (a *appState) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

func (a *appState) progressEnabled() bool {
	if a.noProgress {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func (a *appState) outWriter() io.Writer {
	if a.out == nil {
		return os.Stdout
	}
	return a.out
}

func sanitizeLanguage(input string) string {
	trimmed := strings.TrimSpace(strings.ToLower(input))
	if trimmed == "" {
		return "auto"
	}
	return trimmed
}

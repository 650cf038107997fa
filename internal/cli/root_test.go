package cli

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/murmurvoice/murmur/internal/whisper"
)

func newTestApp(out *bytes.Buffer) *appState {
	return &appState{
		language:    "auto",
		autoCopy:    true,
		silenceGate: true,
		silenceDBFS: -65,
		out:         out,
	}
}

func TestRootCommandRegistersCoreFlags(t *testing.T) {
	t.Parallel()

	cmd := NewRootCmd()

	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	require.NotNil(t, cmd.Flags().Lookup("model"))
	require.NotNil(t, cmd.Flags().Lookup("model-dir"))
	require.NotNil(t, cmd.Flags().Lookup("language"))
	require.NotNil(t, cmd.Flags().Lookup("auto-download"))
	require.NotNil(t, cmd.Flags().Lookup("device"))
	require.NotNil(t, cmd.Flags().Lookup("sample-rate"))
	require.NotNil(t, cmd.Flags().Lookup("copy"))
	require.NotNil(t, cmd.Flags().Lookup("paste"))
	require.NotNil(t, cmd.Flags().Lookup("notify"))
	require.NotNil(t, cmd.Flags().Lookup("copy-empty"))
	require.NotNil(t, cmd.Flags().Lookup("silence-gate"))
	require.NotNil(t, cmd.Flags().Lookup("silence-threshold-dbfs"))
	require.Equal(t, "true", cmd.Flags().Lookup("auto-download").DefValue)
	require.Equal(t, "true", cmd.Flags().Lookup("copy").DefValue)
	require.Equal(t, "false", cmd.Flags().Lookup("paste").DefValue)
	require.Equal(t, "false", cmd.Flags().Lookup("copy-empty").DefValue)
	require.Equal(t, "true", cmd.Flags().Lookup("silence-gate").DefValue)
	require.Equal(t, "-65", cmd.Flags().Lookup("silence-threshold-dbfs").DefValue)
	require.NotNil(t, cmd.Flags().Lookup("duration"))
	require.Equal(t, "0s", cmd.Flags().Lookup("duration").DefValue)
	require.NotNil(t, cmd.Flags().Lookup("immediate"))
}

func TestRootHelpParsesSuccessfully(t *testing.T) {
	t.Parallel()

	cmd := NewRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs([]string{"--help"})

	err := cmd.Execute()
	require.NoError(t, err)
	require.Contains(t, out.String(), "devices")
	require.Contains(t, out.String(), "setup")
	require.Contains(t, out.String(), "version")
}

func TestSubcommandHelpParsesSuccessfully(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		args     []string
		contains string
	}{
		{name: "devices", args: []string{"devices", "--help"}, contains: "List capture devices"},
		{name: "setup", args: []string{"setup", "--help"}, contains: "Download and verify the speech model"},
		{name: "version", args: []string{"version", "--help"}, contains: "Print the version number"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cmd := NewRootCmd()
			out := new(bytes.Buffer)
			cmd.SetOut(out)
			cmd.SetErr(out)
			cmd.SetArgs(tt.args)

			err := cmd.Execute()
			require.NoError(t, err)
			require.Contains(t, out.String(), tt.contains)
		})
	}
}

func TestRunDefaultPrintsAndDeliversTranscript(t *testing.T) {
	t.Parallel()

	out := new(bytes.Buffer)
	app := newTestApp(out)

	var delivered []string
	app.preflightFn = func(context.Context) (whisper.ResolvedModel, error) {
		return whisper.ResolvedModel{Name: "base", Path: "/models/ggml-base.bin"}, nil
	}
	app.sessionFn = func(_ context.Context, modelPath string) (string, error) {
		require.Equal(t, "/models/ggml-base.bin", modelPath)
		return "hello from the microphone", nil
	}
	app.deliverFn = func(_ context.Context, transcript string) error {
		delivered = append(delivered, transcript)
		return nil
	}

	require.NoError(t, app.runDefault(context.Background()))
	require.Equal(t, "hello from the microphone\n", out.String())
	require.Equal(t, []string{"hello from the microphone"}, delivered)
}

func TestRunDefaultBlankTranscriptSkipsDelivery(t *testing.T) {
	t.Parallel()

	out := new(bytes.Buffer)
	app := newTestApp(out)

	app.preflightFn = func(context.Context) (whisper.ResolvedModel, error) {
		return whisper.ResolvedModel{}, nil
	}
	app.sessionFn = func(context.Context, string) (string, error) {
		return blankAudioToken, nil
	}
	app.deliverFn = func(context.Context, string) error {
		t.Fatal("deliver must not run for blank transcripts")
		return nil
	}

	require.NoError(t, app.runDefault(context.Background()))
	require.Contains(t, out.String(), blankAudioToken)
}

func TestRunDefaultBlankTranscriptDeliveredWithCopyEmpty(t *testing.T) {
	t.Parallel()

	out := new(bytes.Buffer)
	app := newTestApp(out)
	app.copyEmpty = true

	delivered := false
	app.preflightFn = func(context.Context) (whisper.ResolvedModel, error) {
		return whisper.ResolvedModel{}, nil
	}
	app.sessionFn = func(context.Context, string) (string, error) {
		return "", nil
	}
	app.deliverFn = func(context.Context, string) error {
		delivered = true
		return nil
	}

	require.NoError(t, app.runDefault(context.Background()))
	require.True(t, delivered)
}

func TestRunDefaultPreflightFailureAbortsSession(t *testing.T) {
	t.Parallel()

	out := new(bytes.Buffer)
	app := newTestApp(out)

	app.preflightFn = func(context.Context) (whisper.ResolvedModel, error) {
		return whisper.ResolvedModel{}, fmt.Errorf("model missing")
	}
	app.sessionFn = func(context.Context, string) (string, error) {
		t.Fatal("session must not run when preflight fails")
		return "", nil
	}
	app.deliverFn = func(context.Context, string) error { return nil }

	err := app.runDefault(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "model missing")
	require.Empty(t, out.String())
}

func TestRunDefaultSessionErrorPropagates(t *testing.T) {
	t.Parallel()

	out := new(bytes.Buffer)
	app := newTestApp(out)

	app.preflightFn = func(context.Context) (whisper.ResolvedModel, error) {
		return whisper.ResolvedModel{}, nil
	}
	app.sessionFn = func(context.Context, string) (string, error) {
		return "", fmt.Errorf("stream died")
	}
	app.deliverFn = func(context.Context, string) error {
		t.Fatal("deliver must not run after a failed session")
		return nil
	}

	err := app.runDefault(context.Background())
	require.Error(t, err)
	require.Empty(t, out.String())
}

func TestSilenceGateTranscript(t *testing.T) {
	t.Parallel()

	app := newTestApp(new(bytes.Buffer))

	quiet := make([]float32, 4800)
	transcript, skipped := app.silenceGateTranscript(quiet)
	require.True(t, skipped)
	require.Equal(t, blankAudioToken, transcript)

	loud := make([]float32, 4800)
	for i := range loud {
		loud[i] = 0.5
	}
	_, skipped = app.silenceGateTranscript(loud)
	require.False(t, skipped)

	app.silenceGate = false
	_, skipped = app.silenceGateTranscript(quiet)
	require.False(t, skipped)
}

func TestSanitizeLanguage(t *testing.T) {
	t.Parallel()

	require.Equal(t, "auto", sanitizeLanguage(""))
	require.Equal(t, "auto", sanitizeLanguage("  "))
	require.Equal(t, "en", sanitizeLanguage(" EN "))
	require.Equal(t, "de", sanitizeLanguage("de"))
}

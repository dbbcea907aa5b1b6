package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/fmueller/voxchunk/internal/session"
	"github.com/stretchr/testify/require"
)

func testResult() session.Result {
	return session.Result{
		Segments: []session.Segment{
			{Start: 0.5, End: 3.2, Text: " hello there "},
			{Start: 4.0, End: 65.0, Text: "general transcription"},
		},
		Language: "en",
		Duration: 70,
		Coverage: 1.0,
	}
}

func TestTranscribeCommandPrintsPlainTranscript(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	app := &appState{out: &out}
	app.transcribeFn = func(context.Context, string) (session.Result, error) {
		return testResult(), nil
	}

	cmd := newTranscribeCmd(app)
	cmd.SetArgs([]string{"some.wav"})
	require.NoError(t, cmd.Execute())
	require.Equal(t, "hello there general transcription\n", out.String())
}

func TestTranscribeCommandPrintsTimestamps(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	app := &appState{out: &out, timestamps: true}
	app.transcribeFn = func(context.Context, string) (session.Result, error) {
		return testResult(), nil
	}

	cmd := newTranscribeCmd(app)
	cmd.SetArgs([]string{"some.wav"})
	require.NoError(t, cmd.Execute())
	require.Equal(t, "[0:00 - 0:03] hello there\n[0:04 - 1:05] general transcription\n", out.String())
}

func TestTranscribeCommandPropagatesErrors(t *testing.T) {
	t.Parallel()

	app := &appState{out: &bytes.Buffer{}}
	app.transcribeFn = func(context.Context, string) (session.Result, error) {
		return session.Result{}, errors.New("server unreachable")
	}

	cmd := newTranscribeCmd(app)
	cmd.SetArgs([]string{"some.wav"})
	require.EqualError(t, cmd.Execute(), "server unreachable")
}

func TestTranscribeCommandRequiresAudioArgument(t *testing.T) {
	t.Parallel()

	app := &appState{out: &bytes.Buffer{}}
	cmd := newTranscribeCmd(app)
	cmd.SetArgs(nil)
	require.Error(t, cmd.Execute())
}

func TestTranscribeAudioMissingFile(t *testing.T) {
	t.Parallel()

	app := &appState{}
	_, err := app.transcribeAudio(context.Background(), "/does/not/exist.wav")
	require.Error(t, err)
}

func TestFormatTimestamp(t *testing.T) {
	t.Parallel()

	require.Equal(t, "0:00", formatTimestamp(0))
	require.Equal(t, "0:59", formatTimestamp(59.4))
	require.Equal(t, "2:05", formatTimestamp(125))
	require.Equal(t, "1:00:01", formatTimestamp(3601))
}

package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fmueller/voxchunk/internal/audio"
	"github.com/fmueller/voxchunk/internal/logging"
	"github.com/fmueller/voxchunk/internal/metrics"
	"github.com/fmueller/voxchunk/internal/orchestrator"
	"github.com/fmueller/voxchunk/internal/session"
	"github.com/fmueller/voxchunk/internal/transcribe"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newTranscribeCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Transcribe a WAV recording in overlapping chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			transcribeFn := app.transcribeFn
			if transcribeFn == nil {
				transcribeFn = app.transcribeAudio
			}

			result, err := transcribeFn(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			app.printResult(result)
			return nil
		},
	}

	bindServerFlags(cmd, app)
	bindChunkingFlags(cmd, app)
	bindOutputFlags(cmd, app)
	bindSilenceFlags(cmd, app)
	bindMetricsFlag(cmd, app)
	return cmd
}

func (a *appState) transcribeAudio(ctx context.Context, audioPath string) (session.Result, error) {
	audioPath = filepath.Clean(audioPath)
	if _, err := os.Stat(audioPath); err != nil {
		return session.Result{}, fmt.Errorf("audio file not found: %w", err)
	}

	if skipped, err := a.silenceGateSkips(audioPath); err != nil {
		return session.Result{}, err
	} else if skipped {
		return session.Result{Language: a.language}, nil
	}

	source, err := audio.NewFileSource(audioPath)
	if err != nil {
		return session.Result{}, fmt.Errorf("load recording: %w", err)
	}

	client, err := transcribe.NewHTTPClient(transcribe.HTTPOptions{
		BaseURL: a.serverURL,
		APIKey:  a.apiKey,
		Logger:  logging.Component(a.log(), "transcribe"),
	})
	if err != nil {
		return session.Result{}, err
	}

	opts := orchestrator.Options{Logger: logging.Component(a.log(), "orchestrator")}
	if a.language != "" && a.language != "auto" {
		opts.Dispatch.Language = a.language
	}
	if a.metricsAddr != "" {
		m := metrics.New()
		opts.Metrics = m
		srv, errCh := m.Serve(a.metricsAddr)
		defer srv.Close()
		go func() {
			if err := <-errCh; err != nil {
				a.log().Warn("metrics listener stopped", zap.Error(err))
			}
		}()
		a.log().Info("metrics exposed", zap.String("addr", a.metricsAddr))
	}

	o := orchestrator.New(client, opts)

	render := newProgressRenderer(a.progressEnabled())
	defer render.stop()
	o.Subscribe(orchestrator.ListenerFuncs{
		ChunkStarted: func(index int) {
			a.log().Debug("chunk started", zap.Int("index", index))
		},
		Progress: render.update,
	})

	a.log().Info("transcribing...",
		zap.String("audio", audioPath),
		zap.Float64("duration", source.DurationSeconds()),
		zap.String("server", a.serverURL),
		zap.String("quality", a.quality))
	started := time.Now()

	if err := o.Start(ctx, source, a.sessionConfig(), source.DurationSeconds()); err != nil {
		return session.Result{}, err
	}
	o.Wait()
	render.stop()

	if o.State() == session.StatusError {
		serr := o.Err()
		a.log().Warn("transcription failed", zap.Duration("elapsed", time.Since(started)), zap.Error(serr))
		return session.Result{}, serr
	}

	result, ok := o.Result()
	if !ok {
		return session.Result{}, fmt.Errorf("session ended without a result")
	}

	a.log().Info("transcription finished",
		zap.Duration("elapsed", time.Since(started)),
		zap.Float64("coverage", result.Coverage))

	if result.Coverage < 1.0 {
		a.log().Warn("transcript is incomplete; some chunks failed permanently",
			zap.Float64("coverage", result.Coverage),
			zap.Int("gaps", len(result.Gaps)))
	}

	return result, nil
}

func (a *appState) printResult(result session.Result) {
	out := a.outWriter()

	if a.timestamps {
		for _, seg := range result.Segments {
			fmt.Fprintf(out, "[%s - %s] %s\n", formatTimestamp(seg.Start), formatTimestamp(seg.End), strings.TrimSpace(seg.Text))
		}
		return
	}

	parts := make([]string, 0, len(result.Segments))
	for _, seg := range result.Segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	fmt.Fprintln(out, strings.Join(parts, " "))
}

func formatTimestamp(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second))
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func (a *appState) silenceGateSkips(audioPath string) (bool, error) {
	if !a.silenceGate {
		return false, nil
	}

	if !strings.EqualFold(filepath.Ext(audioPath), ".wav") {
		return false, nil
	}

	silent, m, err := audio.IsSilentWAV(audioPath, a.silenceDBFS)
	if err != nil {
		a.log().Warn("silence gate analysis failed; continuing transcription", zap.Error(err), zap.String("audio", audioPath))
		return false, nil
	}

	if !silent {
		return false, nil
	}

	a.log().Info(
		"audio considered silent; skipping transcription",
		zap.String("audio", audioPath),
		zap.Float64("rms_dbfs", m.RMSdBFS),
		zap.Float64("peak_dbfs", m.PeakdBFS),
		zap.Float64("threshold_dbfs", a.silenceDBFS),
	)

	return true, nil
}

package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/fmueller/voxchunk/internal/session"
	"go.uber.org/zap"
)

// HTTPClient talks to a whisper-style transcription server over HTTP.
// Each chunk is uploaded as a multipart WAV with its offset and quality
// mode; the server answers with JSON segments relative to the chunk.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// HTTPOptions configures an HTTPClient. BaseURL is required.
type HTTPOptions struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// NewHTTPClient validates opts and builds a client. The timeout here is an
// outer safety net; per-chunk deadlines come from the request context.
func NewHTTPClient(opts HTTPOptions) (*HTTPClient, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("transcription server URL is required")
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("parse server URL: %w", err)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Minute
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &HTTPClient{
		baseURL:    opts.BaseURL,
		apiKey:     opts.APIKey,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

type transcribeResponse struct {
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
}

// TranscribeChunk uploads one chunk and returns its segments shifted to
// source-absolute times.
func (c *HTTPClient) TranscribeChunk(ctx context.Context, req Request) (Response, error) {
	if len(req.Audio) == 0 {
		return Response{}, fmt.Errorf("%w: empty audio payload", ErrBadRequest)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fields := map[string]string{
		"start_offset": strconv.FormatFloat(req.StartOffset, 'f', -1, 64),
		"quality":      string(req.Quality),
	}
	if req.Language != "" {
		fields["language"] = req.Language
	}
	for name, value := range fields {
		if err := mw.WriteField(name, value); err != nil {
			return Response{}, fmt.Errorf("write form field %s: %w", name, err)
		}
	}

	fw, err := mw.CreateFormFile("file", "chunk.wav")
	if err != nil {
		return Response{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(req.Audio); err != nil {
		return Response{}, fmt.Errorf("write audio payload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Response{}, fmt.Errorf("finalize multipart body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transcribe", &body)
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Response{}, ctxErr
		}
		return Response{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		c.logger.Debug("chunk request failed",
			zap.Int("status", resp.StatusCode),
			zap.Float64("offset", req.StartOffset),
			zap.Duration("elapsed", time.Since(started)))
		return Response{}, err
	}

	var decoded transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Response{}, fmt.Errorf("%w: decode response: %v", ErrServer, err)
	}

	out := Response{
		Language: decoded.Language,
		Duration: decoded.Duration,
		Segments: make([]session.Segment, 0, len(decoded.Segments)),
	}
	for _, s := range decoded.Segments {
		out.Segments = append(out.Segments, session.Segment{
			Start: s.Start + req.StartOffset,
			End:   s.End + req.StartOffset,
			Text:  s.Text,
		})
	}
	return out, nil
}

func classifyStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
		return fmt.Errorf("%w: http %d", ErrServerBusy, resp.StatusCode)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: http %d: %s", ErrServer, resp.StatusCode, readErrorBody(resp.Body))
	default:
		return fmt.Errorf("%w: http %d: %s", ErrBadRequest, resp.StatusCode, readErrorBody(resp.Body))
	}
}

func readErrorBody(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil {
		return ""
	}
	return string(bytes.TrimSpace(b))
}

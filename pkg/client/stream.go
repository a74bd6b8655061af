package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/banter/pkg/llm"
)

// sseDone is the terminator payload OpenAI-compatible APIs send after
// the last chunk.
var sseDone = []byte("[DONE]")

// ChatStream sends the messages with streaming enabled and delivers
// each text fragment to onFragment in arrival order. It returns when
// the stream terminates, the context is cancelled, or the upstream
// fails.
func (c *Client) ChatStream(ctx context.Context, messages []llm.Message, onFragment func(string)) error {
	if c.config.APIKey == "" {
		return ErrNoAPIKey
	}

	formatted, err := encodeMessages(messages)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}

	reqBody, err := json.Marshal(llm.ChatRequest{
		Model:       c.config.Model,
		Messages:    formatted,
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
		Stream:      true,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := c.newRequest(ctx, reqBody)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	start := time.Now()
	c.logger.Debug("sending streaming chat request",
		zap.String("model", c.config.Model),
		zap.Int("message_count", len(formatted)),
	)

	httpResp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(httpResp.Body)
		return c.apiError(httpResp.StatusCode, body)
	}

	if err := c.readStream(ctx, httpResp.Body, onFragment); err != nil {
		return err
	}

	c.logger.Debug("streaming complete", zap.Duration("duration", time.Since(start)))
	return nil
}

// readStream consumes SSE events until the [DONE] terminator, a
// finish_reason, EOF, or cancellation. Malformed chunks are skipped.
func (c *Client) readStream(ctx context.Context, body io.Reader, onFragment func(string)) error {
	reader := newSSEReader(body)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		data, err := reader.next()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("read stream: %w", err)
		}

		if bytes.Equal(data, sseDone) {
			return nil
		}

		var chunk llm.StreamChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			c.logger.Warn("skipping malformed chunk", zap.Error(err))
			continue
		}

		if fragment := chunk.Fragment(); fragment != "" {
			onFragment(fragment)
		}
		if chunk.Done() {
			return nil
		}
	}
}

// sseReader parses Server-Sent Events, yielding one event's data at a
// time. Only data fields matter for completions streams; event, id,
// retry, and comment lines are ignored.
type sseReader struct {
	r *bufio.Reader
}

func newSSEReader(r io.Reader) *sseReader {
	return &sseReader{r: bufio.NewReader(r)}
}

// next returns the data payload of the next event, joining multi-line
// data fields with newlines. Returns io.EOF at end of stream.
func (s *sseReader) next() ([]byte, error) {
	var data [][]byte

	for {
		line, err := s.r.ReadBytes('\n')
		if err != nil {
			if err == io.EOF && len(data) > 0 {
				return bytes.Join(data, []byte("\n")), nil
			}
			return nil, err
		}

		line = bytes.TrimRight(line, "\r\n")

		// Blank line ends the event.
		if len(line) == 0 {
			if len(data) > 0 {
				return bytes.Join(data, []byte("\n")), nil
			}
			continue
		}

		if bytes.HasPrefix(line, []byte("data:")) {
			data = append(data, bytes.TrimSpace(line[5:]))
		}
	}
}

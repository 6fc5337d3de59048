package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// errIdleTimeout is returned when a streaming read stalls.
var errIdleTimeout = errors.New("sse read idle timeout")

// timedReader applies a per-Read deadline. A provider that sends
// headers and then goes silent would otherwise block the scanner
// forever; context cancellation does not interrupt Body.Read.
type timedReader struct {
	r       io.Reader
	timeout time.Duration
}

func (t *timedReader) Read(p []byte) (int, error) {
	type result struct {
		n   int
		err error
	}
	ch := make(chan result, 1)
	go func() {
		n, err := t.r.Read(p)
		ch <- result{n, err}
	}()

	select {
	case res := <-ch:
		return res.n, res.err
	case <-time.After(t.timeout):
		return 0, errIdleTimeout
	}
}

// scanSSE reads an OpenAI-style event stream, invoking emit for each
// content delta. It accumulates and returns the full text. Terminates
// on "data: [DONE]", a finish_reason, or stream end; a stalled stream
// returns what arrived so far together with an error when nothing
// arrived at all.
func scanSSE(ctx context.Context, r io.Reader, idleTimeout time.Duration, emit func(delta string)) (string, error) {
	scanner := bufio.NewScanner(&timedReader{r: r, timeout: idleTimeout})
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var full strings.Builder

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return full.String(), ctx.Err()
		default:
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			return full.String(), nil
		}

		var chunk openaiStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			full.WriteString(choice.Delta.Content)
			emit(choice.Delta.Content)
		}
		// Some OpenAI-compatible servers send finish_reason but never
		// [DONE]; waiting further would hang until the idle timeout.
		if choice.FinishReason != nil && *choice.FinishReason != "" {
			return full.String(), nil
		}
	}

	if err := scanner.Err(); err != nil {
		if errors.Is(err, errIdleTimeout) && full.Len() > 0 {
			// Partial output beats nothing.
			return full.String(), nil
		}
		return full.String(), fmt.Errorf("sse scan: %w", err)
	}
	return full.String(), nil
}

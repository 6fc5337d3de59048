package telegram

import (
	"strings"
	"unicode/utf8"
)

// telegramMessageLimit is the Bot API ceiling for message text length.
const telegramMessageLimit = 4096

type fenceSpan struct{ start, end int }

// splitMessage splits a long reply into Telegram-sized chunks. Split
// points prefer paragraph breaks, then line breaks, then sentence ends,
// then spaces, and avoid cutting fenced code blocks in half when the
// block can be kept whole.
func splitMessage(text string) []string {
	if len(text) <= telegramMessageLimit {
		return []string{text}
	}

	fences := fenceSpans(text)

	var chunks []string
	remaining := text
	offset := 0
	for len(remaining) > 0 {
		if len(remaining) <= telegramMessageLimit {
			chunks = append(chunks, remaining)
			break
		}

		splitAt := telegramMessageLimit
		abs := offset + splitAt
		for _, span := range fences {
			if abs <= span.start || abs >= span.end {
				continue
			}
			switch {
			case span.end-offset <= telegramMessageLimit:
				splitAt = span.end - offset
			case span.start-offset >= telegramMessageLimit/3:
				splitAt = span.start - offset
			}
			break
		}
		if splitAt == telegramMessageLimit {
			splitAt = findSplitPoint(remaining, telegramMessageLimit)
		}

		chunks = append(chunks, closeOpenFence(remaining[:splitAt]))
		rest := strings.TrimLeft(remaining[splitAt:], " \t\r\n")
		offset += len(remaining) - len(rest)
		remaining = rest
	}
	return chunks
}

// findSplitPoint picks a cut position at or before max, preferring
// paragraph, line, sentence and word boundaries in that order.
func findSplitPoint(text string, max int) int {
	window := text[:max]

	if idx := strings.LastIndex(window, "\n\n"); idx >= max/2 {
		return idx
	}
	if idx := strings.LastIndex(window, "\n"); idx >= max/2 {
		return idx
	}
	for _, sep := range []string{". ", "! ", "? "} {
		if idx := strings.LastIndex(window, sep); idx >= max/2 {
			return idx + 1
		}
	}
	if idx := strings.LastIndex(window, " "); idx >= max/3 {
		return idx
	}

	// Hard cut, but never in the middle of a rune.
	for max > 0 && !utf8.RuneStart(text[max]) {
		max--
	}
	return max
}

// fenceSpans locates ``` code blocks so splits can route around them.
// An unterminated fence runs to the end of the text.
func fenceSpans(text string) []fenceSpan {
	var spans []fenceSpan
	pos := 0
	for {
		open := strings.Index(text[pos:], "```")
		if open < 0 {
			return spans
		}
		open += pos
		closing := strings.Index(text[open+3:], "```")
		if closing < 0 {
			return append(spans, fenceSpan{open, len(text)})
		}
		end := open + 3 + closing + 3
		spans = append(spans, fenceSpan{open, end})
		pos = end
	}
}

// closeOpenFence terminates a trailing code fence so the chunk renders
// as valid Markdown on its own.
func closeOpenFence(chunk string) string {
	if strings.Count(chunk, "```")%2 == 1 {
		return chunk + "\n```"
	}
	return chunk
}

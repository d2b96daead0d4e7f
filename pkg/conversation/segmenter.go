package conversation

import (
	"strings"
	"unicode/utf8"
)

// TextSegment is a speakable piece of a streamed reply
type TextSegment struct {
	Text    string
	IsFinal bool
	PlayID  string
}

// TextSegmenter cuts streamed LLM tokens into sentences so synthesis can
// start before the whole reply exists.
type TextSegmenter struct {
	buffer   strings.Builder
	minChars int
	maxChars int
	playID   string
}

func NewTextSegmenter(playID string) *TextSegmenter {
	return &TextSegmenter{minChars: 48, maxChars: 160, playID: playID}
}

// OnToken appends a token and returns any segments it completes
func (s *TextSegmenter) OnToken(token string) []TextSegment {
	s.buffer.WriteString(token)
	text := strings.TrimRight(s.buffer.String(), " \t\n")
	if text == "" {
		return nil
	}

	switch last, _ := utf8.DecodeLastRuneInString(text); last {
	case '.', '!', '?':
		return s.flush(false)
	case ',', ';', ':':
		// long clauses are worth speaking early
		if utf8.RuneCountInString(text) >= s.minChars {
			return s.flush(false)
		}
	}
	if utf8.RuneCountInString(text) > s.maxChars {
		return s.flush(false)
	}
	return nil
}

// OnComplete flushes whatever is left
func (s *TextSegmenter) OnComplete() []TextSegment {
	return s.flush(true)
}

func (s *TextSegmenter) Reset() {
	s.buffer.Reset()
}

func (s *TextSegmenter) flush(final bool) []TextSegment {
	text := strings.TrimSpace(s.buffer.String())
	s.buffer.Reset()
	if text == "" {
		return nil
	}
	return []TextSegment{{Text: text, IsFinal: final, PlayID: s.playID}}
}

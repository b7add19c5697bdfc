package deepgram

import (
	"strings"
	"sync"
)

// transcriptAggregator joins final results, falling back to the last interim
// text when a stream ends before Deepgram finalizes it.
type transcriptAggregator struct {
	mu         sync.Mutex
	finals     []string
	lastSpoken string
}

func newTranscriptAggregator() *transcriptAggregator {
	return &transcriptAggregator{}
}

func (a *transcriptAggregator) Add(text string, final bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	a.lastSpoken = text
	if final {
		a.finals = append(a.finals, text)
	}
}

func (a *transcriptAggregator) Text() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	joined := strings.TrimSpace(strings.Join(a.finals, " "))
	switch {
	case joined == "":
		return a.lastSpoken
	case a.lastSpoken == "", strings.HasSuffix(joined, a.lastSpoken):
		return joined
	case len(a.lastSpoken) > len(joined):
		return joined + " " + a.lastSpoken
	default:
		return joined
	}
}

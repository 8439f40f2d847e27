package intake

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/call-intake-poc-v1/server/internal/agent/model"
)

const defaultQueueSize = 16

// TranscriptListener filters recognition events and queues final utterances
// in strictly increasing sequence order for the call worker.
type TranscriptListener struct {
	mu        sync.Mutex
	highest   uint64
	delivered bool
	queue     chan model.Utterance
}

func NewTranscriptListener(size int) *TranscriptListener {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &TranscriptListener{queue: make(chan model.Utterance, size)}
}

// Accept queues ev if it is a new final utterance. It blocks while the queue
// is full and gives up when ctx is done. It reports whether ev was queued.
func (l *TranscriptListener) Accept(ctx context.Context, ev TranscriptEvent) bool {
	if !ev.Final {
		return false
	}
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return false
	}

	// held across the send so concurrent producers cannot reorder the queue
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.delivered && ev.Seq <= l.highest {
		return false
	}

	u := model.Utterance{Text: text, Seq: ev.Seq, Final: true, ReceivedAt: time.Now()}
	select {
	case l.queue <- u:
		l.highest = ev.Seq
		l.delivered = true
		return true
	case <-ctx.Done():
		return false
	}
}

// Utterances is consumed by the call worker. It is never closed.
func (l *TranscriptListener) Utterances() <-chan model.Utterance {
	return l.queue
}

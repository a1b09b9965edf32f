package notify

import (
	"context"
	"sync"
	"time"

	"plate-gate/internal/domain/anpr"
)

const (
	logChunkRunes  = 3800
	logQueueSize   = 64
	logSendTimeout = 10 * time.Second
)

// LogWriter forwards log lines to the debug chats. Writes never block: when
// the queue is full, or after Close, the line is dropped.
type LogWriter struct {
	notifier Notifier
	prefix   string
	lines    chan string
	quit     chan struct{}
	done     chan struct{}

	mu       sync.Mutex
	closed   bool
	stopOnce sync.Once
}

func NewLogWriter(notifier Notifier, prefix string) *LogWriter {
	w := &LogWriter{
		notifier: notifier,
		prefix:   prefix,
		lines:    make(chan string, logQueueSize),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *LogWriter) Write(p []byte) (int, error) {
	line := string(p)
	if w.prefix != "" {
		line = w.prefix + " " + line
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return len(p), nil
	}
	select {
	case w.lines <- line:
	default:
	}
	return len(p), nil
}

// Close stops forwarding after queued lines are sent. It is safe to call
// more than once and concurrently with Write.
func (w *LogWriter) Close() error {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()
		close(w.quit)
	})
	<-w.done
	return nil
}

func (w *LogWriter) loop() {
	defer close(w.done)
	for {
		select {
		case line := <-w.lines:
			w.send(line)
		case <-w.quit:
			for {
				select {
				case line := <-w.lines:
					w.send(line)
				default:
					return
				}
			}
		}
	}
}

func (w *LogWriter) send(line string) {
	for _, chunk := range Chunk(line, logChunkRunes) {
		ctx, cancel := context.WithTimeout(context.Background(), logSendTimeout)
		_ = w.notifier.SendText(ctx, Message{Text: chunk, Route: anpr.RouteDebug})
		cancel()
	}
}

// Chunk splits s into pieces of at most size runes.
func Chunk(s string, size int) []string {
	if s == "" {
		return []string{"(empty log message)"}
	}
	r := []rune(s)
	var out []string
	for len(r) > size {
		out = append(out, string(r[:size]))
		r = r[size:]
	}
	return append(out, string(r))
}

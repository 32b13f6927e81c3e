package turn

import (
	"sync"
	"sync/atomic"
)

// PlaybackSession is the reply currently being spoken. It is owned by one turn;
// only the interrupt flag is touched from outside it.
type PlaybackSession struct {
	interrupted atomic.Bool

	mu     sync.Mutex
	chunks []string
	index  int
}

func newPlaybackSession() *PlaybackSession {
	return &PlaybackSession{}
}

// Interrupt asks playback to stop at the next check.
func (p *PlaybackSession) Interrupt() { p.interrupted.Store(true) }

// Interrupted reports whether Interrupt was called.
func (p *PlaybackSession) Interrupted() bool { return p.interrupted.Load() }

func (p *PlaybackSession) setChunks(chunks []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chunks = chunks
	p.index = 0
}

// next returns the chunk at the current index and advances it. It returns
// false once the chunks are exhausted or playback was interrupted.
func (p *PlaybackSession) next() (string, bool) {
	if p.Interrupted() {
		return "", false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.index >= len(p.chunks) {
		return "", false
	}
	c := p.chunks[p.index]
	p.index++
	return c, true
}

// Index returns how many chunks have been taken for playback.
func (p *PlaybackSession) Index() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index
}

// Len returns the number of chunks in the reply.
func (p *PlaybackSession) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.chunks)
}

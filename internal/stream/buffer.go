// Package stream turns chat-stream chunks into message lifecycle transitions
// and persists the resulting message list.
package stream

import (
	"strings"
	"sync"
)

// Buffer is the synchronous source of truth for the text of the open message.
// Renderers read it; nothing else holds a second copy while streaming.
type Buffer struct {
	mu sync.Mutex
	sb strings.Builder
}

func (b *Buffer) Append(s string) {
	if s == "" {
		return
	}
	b.mu.Lock()
	b.sb.WriteString(s)
	b.mu.Unlock()
}

func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sb.String()
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sb.Len()
}

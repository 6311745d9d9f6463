package quant

import (
	"strings"
	"sync"

	"github.com/emirpasic/gods/lists/arraylist"
)

// Transcript is the ordered log of everything a run printed: tool output
// plus the run's own progress lines. It is safe for concurrent use; the
// server reads it for status requests while the pipeline appends.
type Transcript struct {
	mu    sync.RWMutex
	lines *arraylist.List
}

func NewTranscript() *Transcript {
	return &Transcript{lines: arraylist.New()}
}

func (t *Transcript) Append(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines.Add(line)
}

func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lines.Size()
}

// Lines returns a copy of the transcript so far.
func (t *Transcript) Lines() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	lines := make([]string, 0, t.lines.Size())
	it := t.lines.Iterator()
	for it.Next() {
		lines = append(lines, it.Value().(string))
	}

	return lines
}

func (t *Transcript) String() string {
	return strings.Join(t.Lines(), "\n")
}

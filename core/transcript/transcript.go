// Package transcript assembles streamed partial transcriptions into
// discrete conversation turns.
package transcript

import (
	"strings"
	"sync"
)

type Speaker string

const (
	SpeakerUser Speaker = "User"
	SpeakerAI   Speaker = "AI"
)

// Entry is one committed utterance. Entries are immutable.
type Entry struct {
	Speaker    Speaker
	Text       string
	SequenceID int64
}

// Assembler accumulates partial input and output text until a turn
// boundary. It is not safe for concurrent use.
type Assembler struct {
	input  strings.Builder
	output strings.Builder
	lastID int64
}

func (a *Assembler) AppendInput(text string)  { a.input.WriteString(text) }
func (a *Assembler) AppendOutput(text string) { a.output.WriteString(text) }

func (a *Assembler) PendingInput() string  { return a.input.String() }
func (a *Assembler) PendingOutput() string { return a.output.String() }

// CompleteTurn commits the accumulated text and resets both accumulators.
// The user entry, when present, always precedes the assistant entry.
func (a *Assembler) CompleteTurn() []Entry {
	input := strings.TrimSpace(a.input.String())
	output := strings.TrimSpace(a.output.String())
	a.input.Reset()
	a.output.Reset()

	var entries []Entry
	if input != "" {
		entries = append(entries, a.newEntry(SpeakerUser, input))
	}
	if output != "" {
		entries = append(entries, a.newEntry(SpeakerAI, output))
	}
	return entries
}

// Reset drops pending text. Sequence ids keep increasing.
func (a *Assembler) Reset() {
	a.input.Reset()
	a.output.Reset()
}

func (a *Assembler) newEntry(speaker Speaker, text string) Entry {
	a.lastID++
	return Entry{Speaker: speaker, Text: text, SequenceID: a.lastID}
}

// Log is the ordered, observable transcript.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
}

func (l *Log) Append(entries ...Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entries...)
}

// Entries returns a point-in-time copy of the log.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries := make([]Entry, len(l.entries))
	copy(entries, l.entries)
	return entries
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

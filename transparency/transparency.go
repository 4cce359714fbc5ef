// Package transparency exposes intermediate artifacts of extraction and
// matching (detected minutiae, similarity matrices, assignments) to an
// optional consumer, encoded as CBOR.
package transparency

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

const MimeCBOR = "application/cbor"

// Keys emitted by this module.
const (
	KeyMinutiae   = "minutiae"
	KeySimilarity = "similarity-matrix"
	KeyAssignment = "assignment"
	KeyScore      = "score"
)

// Consumer receives artifacts. Accepts is consulted before anything is
// encoded so uninteresting keys cost nothing. Matching scores templates in
// parallel, so both methods may be called concurrently.
type Consumer interface {
	Accepts(key string) bool
	Accept(key, mime string, data []byte) error
}

// Logger forwards artifacts to a Consumer. A nil *Logger is valid and drops
// everything.
type Logger struct {
	consumer Consumer
	enc      cbor.EncMode
}

var encMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

func NewLogger(c Consumer) *Logger {
	return &Logger{consumer: c, enc: encMode}
}

// Accepts reports whether anything would be recorded under key.
func (l *Logger) Accepts(key string) bool {
	return l != nil && l.consumer != nil && l.consumer.Accepts(key)
}

// Log encodes v and hands it to the consumer if it accepts key.
func (l *Logger) Log(key string, v interface{}) error {
	if !l.Accepts(key) {
		return nil
	}
	data, err := l.enc.Marshal(v)
	if err != nil {
		return fmt.Errorf("transparency %s: %w", key, err)
	}
	return l.consumer.Accept(key, MimeCBOR, data)
}

// Func adapts a function into a Consumer accepting every key.
type Func func(key, mime string, data []byte) error

func (f Func) Accepts(string) bool { return true }

func (f Func) Accept(key, mime string, data []byte) error { return f(key, mime, data) }

package stream

import "bytes"

// Detector decides whether a freshly computed snapshot is worth pushing.
// Implementations keep the last-sent marker for exactly one session.
type Detector[T any] interface {
	// Changed compares the snapshot with the last recorded one and, when it
	// differs, records it and returns true.
	Changed(snapshot T, encoded []byte) bool
	// Record stores the snapshot as sent without comparing.
	Record(snapshot T, encoded []byte)
}

// EncodedDetector treats two snapshots as equal when their JSON encodings are
// byte-for-byte identical.
type EncodedDetector[T any] struct {
	last []byte
}

// NewEncodedDetector returns a detector comparing encoded bytes.
func NewEncodedDetector[T any]() *EncodedDetector[T] {
	return &EncodedDetector[T]{}
}

func (d *EncodedDetector[T]) Changed(_ T, encoded []byte) bool {
	if d.last != nil && bytes.Equal(d.last, encoded) {
		return false
	}
	d.last = append(d.last[:0], encoded...)
	return true
}

func (d *EncodedDetector[T]) Record(_ T, encoded []byte) {
	d.last = append(d.last[:0], encoded...)
}

// NewestFunc extracts the identifier of the newest record in a snapshot. It
// returns false when the snapshot holds no records.
type NewestFunc[T any] func(snapshot T) (int64, bool)

// NewestIDDetector reports a change whenever the newest record's identifier
// differs from the last one sent. Empty snapshots never count as a change.
type NewestIDDetector[T any] struct {
	newest NewestFunc[T]
	last   int64
	seen   bool
}

// NewNewestIDDetector returns a detector keyed on fn.
func NewNewestIDDetector[T any](fn NewestFunc[T]) *NewestIDDetector[T] {
	return &NewestIDDetector[T]{newest: fn}
}

func (d *NewestIDDetector[T]) Changed(snapshot T, _ []byte) bool {
	id, ok := d.newest(snapshot)
	if !ok {
		return false
	}
	if d.seen && d.last == id {
		return false
	}
	d.last, d.seen = id, true
	return true
}

func (d *NewestIDDetector[T]) Record(snapshot T, _ []byte) {
	if id, ok := d.newest(snapshot); ok {
		d.last, d.seen = id, true
	}
}

// LastID returns the tracked identifier, if one has been recorded.
func (d *NewestIDDetector[T]) LastID() (int64, bool) {
	return d.last, d.seen
}

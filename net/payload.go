package net

import "encoding/binary"

// Writer is a bounded big-endian cursor over a frame body under
// construction. Once the cursor hits the end of the buffer every write
// returns ErrWait, the signal that the current frame is full.
type Writer struct {
	buf []byte
	pos int
}

// NewWriter wraps buf; writes fill it from the start.
func NewWriter(buf []byte) *Writer {
	return &Writer{buf: buf}
}

// Free returns the number of bytes still writable.
func (w *Writer) Free() int {
	return len(w.buf) - w.pos
}

// Written returns the bytes produced so far.
func (w *Writer) Written() []byte {
	return w.buf[:w.pos]
}

func (w *Writer) reserve(n int) ([]byte, error) {
	if w.Free() < n {
		return nil, ErrWait
	}
	b := w.buf[w.pos : w.pos+n]
	w.pos += n
	return b, nil
}

func (w *Writer) WriteUint8(v uint8) error {
	b, err := w.reserve(1)
	if err != nil {
		return err
	}
	b[0] = v
	return nil
}

func (w *Writer) WriteUint16(v uint16) error {
	b, err := w.reserve(2)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint16(b, v)
	return nil
}

func (w *Writer) WriteUint32(v uint32) error {
	b, err := w.reserve(4)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint32(b, v)
	return nil
}

func (w *Writer) WriteUint64(v uint64) error {
	b, err := w.reserve(8)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint64(b, v)
	return nil
}

func (w *Writer) WriteBytes(p []byte) error {
	b, err := w.reserve(len(p))
	if err != nil {
		return err
	}
	copy(b, p)
	return nil
}

// Reader is the decoding counterpart of Writer. Reading past the end of the
// body returns ErrWait, which batch decoding treats as a truncated frame.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps a decrypted frame body.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

func (r *Reader) take(n int) ([]byte, error) {
	if r.Remaining() < n {
		return nil, ErrWait
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *Reader) ReadUint8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *Reader) ReadUint64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// ReadBytes returns a view of the next n bytes, valid as long as the frame
// body backing the reader.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	return r.take(n)
}

// Message is one game message as the transport sees it. Implementations
// serialize themselves into a frame body; the transport never interprets
// their contents.
//
// EncodePayload must return ErrWait, leaving the writer untouched or with
// the writer rolled back by the caller, when the message does not fit in the
// remaining frame space.
type Message interface {
	EncodePayload(w *Writer) error
	DecodePayload(r *Reader) error
}

// PayloadBatch accumulates game messages headed into or out of one frame.
// A batch is reused across clients within a tick; Reset clears the message
// slots so no message instance can leak from one client's frame into
// another's.
type PayloadBatch struct {
	msgs    []Message
	factory func() Message
}

// NewPayloadBatch creates a batch that decodes incoming messages through
// factory. Outbound-only batches may pass nil.
func NewPayloadBatch(factory func() Message) *PayloadBatch {
	return &PayloadBatch{factory: factory}
}

// Add queues a message for the next encoded frame.
func (b *PayloadBatch) Add(m Message) {
	b.msgs = append(b.msgs, m)
}

// Len returns the number of queued messages.
func (b *PayloadBatch) Len() int {
	return len(b.msgs)
}

// Messages returns the queued messages, oldest first. The slice is owned by
// the batch and invalidated by Add and Reset.
func (b *PayloadBatch) Messages() []Message {
	return b.msgs
}

// Reset empties the batch, releasing every queued message reference.
func (b *PayloadBatch) Reset() {
	for i := range b.msgs {
		b.msgs[i] = nil
	}
	b.msgs = b.msgs[:0]
}

// encode serializes queued messages into w in order until one no longer
// fits, removing the written ones from the batch. It reports ErrWait when
// the batch is non-empty but not even the first message fits, so the caller
// can try again with a fresh frame.
func (b *PayloadBatch) encode(w *Writer) (int, error) {
	written := 0
	for _, m := range b.msgs {
		mark := w.pos
		if err := m.EncodePayload(w); err != nil {
			if err == ErrWait {
				w.pos = mark
				break
			}
			return written, err
		}
		written++
	}
	if written > 0 {
		n := copy(b.msgs, b.msgs[written:])
		for i := n; i < len(b.msgs); i++ {
			b.msgs[i] = nil
		}
		b.msgs = b.msgs[:n]
	} else if len(b.msgs) > 0 {
		return 0, ErrWait
	}
	return written, nil
}

// decode appends every message in the frame body to the batch. A message
// that runs past the end of the body is a truncated frame.
func (b *PayloadBatch) decode(r *Reader) error {
	for r.Remaining() > 0 {
		m := b.factory()
		if err := m.DecodePayload(r); err != nil {
			return err
		}
		b.msgs = append(b.msgs, m)
	}
	return nil
}

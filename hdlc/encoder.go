// Package hdlc implements HDLC-lite framing used on the byte link between the
// host and the co-processor: flag delimited frames, byte stuffing and a
// trailing 16-bit FCS.
package hdlc

const (
	FlagSequence   byte = 0x7e
	EscapeSequence byte = 0x7d
	FlagXon        byte = 0x11
	FlagXoff       byte = 0x13
	FlagVendor     byte = 0xf8

	escapeXor byte = 0x20
)

func needsEscape(b byte) bool {
	switch b {
	case FlagSequence, EscapeSequence, FlagXon, FlagXoff, FlagVendor:
		return true
	}
	return false
}

func appendEscaped(dst []byte, b byte) []byte {
	if needsEscape(b) {
		return append(dst, EscapeSequence, b^escapeXor)
	}
	return append(dst, b)
}

// Encoder builds one encoded frame at a time into an internal buffer.
type Encoder struct {
	out []byte
	fcs uint16
}

func NewEncoder() *Encoder {
	return &Encoder{}
}

func (e *Encoder) BeginFrame() {
	e.out = append(e.out[:0], FlagSequence)
	e.fcs = fcsInit
}

func (e *Encoder) WriteByte(b byte) error {
	e.fcs = updateFcs(e.fcs, b)
	e.out = appendEscaped(e.out, b)
	return nil
}

func (e *Encoder) Write(p []byte) (int, error) {
	for _, b := range p {
		_ = e.WriteByte(b)
	}
	return len(p), nil
}

// EndFrame closes the frame and returns the encoded bytes. The slice is
// reused by the next BeginFrame.
func (e *Encoder) EndFrame() []byte {
	fcs := e.fcs ^ 0xffff
	e.out = appendEscaped(e.out, byte(fcs))
	e.out = appendEscaped(e.out, byte(fcs>>8))
	e.out = append(e.out, FlagSequence)
	return e.out
}

// AppendFrame appends the encoding of frame to dst.
func AppendFrame(dst []byte, frame []byte) []byte {
	dst = append(dst, FlagSequence)
	fcs := Fcs(frame)
	for _, b := range frame {
		dst = appendEscaped(dst, b)
	}
	dst = appendEscaped(dst, byte(fcs))
	dst = appendEscaped(dst, byte(fcs>>8))
	return append(dst, FlagSequence)
}

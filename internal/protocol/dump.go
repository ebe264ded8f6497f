package protocol

import (
	"encoding/hex"
	"strings"
	"unicode"
)

// ParseDump returns the bytes of a captured stream. Text made only of hex
// digit pairs, whitespace and 0x prefixes is decoded as hex; anything else is
// returned unchanged as a binary capture.
func ParseDump(data []byte) []byte {
	fields := strings.FieldsFunc(string(data), func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == ':'
	})
	if len(fields) == 0 {
		return data
	}

	var sb strings.Builder
	for _, f := range fields {
		f = strings.TrimPrefix(strings.TrimPrefix(f, "0x"), "0X")
		sb.WriteString(f)
	}
	decoded, err := hex.DecodeString(sb.String())
	if err != nil {
		return data
	}
	return decoded
}

// Analysis is the result of running a whole capture through a Reader
type Analysis struct {
	Frames         []*Frame
	Sense          int
	Control        int
	ChecksumErrors int
	Desyncs        uint64
	Incomplete     bool // The capture ends inside a frame
}

// Analyze feeds data through a fresh Reader and collects every frame,
// including those with checksum mismatches.
func Analyze(data []byte, opts ...ReaderOption) *Analysis {
	r := NewReader(nil, opts...)
	a := &Analysis{}
	for _, b := range data {
		f, done := r.Step(b)
		if !done {
			continue
		}
		a.Frames = append(a.Frames, f)
		switch f.Kind {
		case FrameSense:
			a.Sense++
		case FrameControl:
			a.Control++
		}
		if !f.Valid() {
			a.ChecksumErrors++
		}
	}
	a.Desyncs = r.Desyncs()
	a.Incomplete = r.state != stateWaiting
	return a
}

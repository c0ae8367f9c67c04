package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Encode serializes an envelope for transmission. Missing data is sent as {}.
func Encode(env Envelope) ([]byte, error) {
	if len(env.Data) == 0 {
		env.Data = emptyObject
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s envelope: %w", env.Type, err)
	}
	return b, nil
}

// SplitFrame breaks a transport frame into newline-separated segments.
// Blank segments are dropped. The server's write pump batches queued messages
// into one frame this way.
func SplitFrame(frame []byte) [][]byte {
	parts := bytes.Split(frame, []byte("\n"))
	segments := make([][]byte, 0, len(parts))
	for _, part := range parts {
		part = bytes.TrimSpace(part)
		if len(part) == 0 {
			continue
		}
		segments = append(segments, part)
	}
	return segments
}

// SegmentError describes a segment of a frame that could not be decoded.
type SegmentError struct {
	Index   int
	Segment []byte
	Err     error
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("segment %d: %v", e.Index, e.Err)
}

func (e *SegmentError) Unwrap() error {
	return e.Err
}

// DecodeFrame decodes every segment of a frame independently. Envelopes are
// returned in frame order; a bad segment adds a *SegmentError and decoding
// continues with the next one.
func DecodeFrame(frame []byte) ([]Envelope, []error) {
	var (
		envelopes []Envelope
		errs      []error
	)
	for i, segment := range SplitFrame(frame) {
		var env Envelope
		if err := json.Unmarshal(segment, &env); err != nil {
			errs = append(errs, &SegmentError{Index: i, Segment: segment, Err: err})
			continue
		}
		if env.Type == "" {
			errs = append(errs, &SegmentError{Index: i, Segment: segment, Err: fmt.Errorf("envelope has no type")})
			continue
		}
		envelopes = append(envelopes, env)
	}
	return envelopes, errs
}

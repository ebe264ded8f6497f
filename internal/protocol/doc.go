// Package protocol implements the KWB Easyfire telemetry wire protocol.
//
// The heating controller writes an unframed byte stream to its RS-232 port (or to
// a serial-to-TCP adapter). This package finds packet boundaries in that stream,
// validates the rolling checksum, removes byte-stuffing and decodes the two frame
// encodings into typed values.
//
// # Frame Layout
//
// Sense frames carry temperatures:
//
//	02 02 <len> 10 <cnt> <payload: len+offset bytes> <checksum>
//
// Control frames carry actuator flags:
//
//	02 15 11 <cnt> <payload: 16 bytes> <checksum>
//
// The length offset is a named parameter (DefaultSenseLengthOffset) because the
// relationship between the declared length and the number of bytes on the wire
// has only been established against captured traffic, not documentation.
//
// # Checksum
//
// The checksum accumulator is rotated left by one bit before each byte is added.
// A sum above 255 is reduced by 255. The accumulator is seeded with the preamble
// byte, re-seeded with the sense marker, and covers every byte except the
// received checksum itself.
//
// # Byte-Stuffing
//
// Inside a Sense payload a literal 0x02 is followed by a pad 0x00. Unstuff drops
// the pad. The first Sense payload byte is not part of the stuffed data.
//
// # Usage Example
//
//	r := protocol.NewReader(bufio.NewReader(conn))
//	for {
//	    frame, err := r.ReadFrame()
//	    if protocol.IsFatal(err) {
//	        return err
//	    }
//	    if err != nil {
//	        continue // checksum mismatch, already resynchronized
//	    }
//	    reading, err := protocol.Decode(frame)
//	    ...
//	}
//
// # Error Handling
//
// Errors are *ProtocolError values carrying an ErrorType. Framing noise is
// never returned from ReadFrame; it is reported to an optional desync hook.
// Checksum mismatches are returned together with the frame. Transport failures
// are fatal. Use errors.Is with the Err* sentinels to classify.
//
// # Thread Safety
//
// Reader is not safe for concurrent use; it is owned by a single worker.
// The decode functions are stateless.
package protocol

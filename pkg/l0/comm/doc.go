// Package comm provides L0 framing support.
package comm

// L0 frames are exchanged between the board firmware and the host over a
// byte stream (usually a serial port). A frame is a COBS stuffed payload
// terminated by a single 0x00 byte, so the terminator never appears inside
// a frame and the receiver can always resynchronize on the next 0x00.
//
// The firmware may also print plain text lines terminated by "\r\n" on the
// same stream. The Parser splits the stream on whichever terminator comes
// first and reports each chunk as either a frame or a debug line.
//
// Payload content is opaque to this package, see package msgs.
//
// Producer: board firmware
// Consumer: host connector

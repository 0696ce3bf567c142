// Package wire implements the gather server's framing: text commands in,
// length-prefixed binary frames out.
//
// Every response is a frame of the shape
//
//	uint32 length | payload
//
// where length counts the payload bytes. Tagged frames put a one-byte tag
// first in the payload:
//
//	'T' | uint8 itemCount | itemCount x uint16 typeCode        type frame
//	'D' | uint32 sampleCount | lineWords*4*sampleCount bytes   data frame
//
// Mode switches are acknowledged with the untagged single-byte payload "K".
//
// All multi-byte fields — the length prefix, type codes, and the data
// frame's sample count — are big-endian. The historical C server wrote
// host order, but it only ever ran on the controller's big-endian CPU and
// its clients already decoded big-endian, so network order is both the
// documented contract and compatible with the installed base. The raw
// sample buffer is passed through byte-for-byte; decoding it belongs to
// clients.
//
// Builders read the telemetry source at call time, observe each source
// field exactly once per frame, and issue exactly two socket writes per
// frame: the length prefix, then the payload. A failed write aborts the
// whole response.
package wire

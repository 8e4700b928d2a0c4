// Package protocol owns the wire contract shared by framing and codecs.
//
// Ownership boundary:
// - protocol version constant
// - error taxonomy (encode, decode, version, length, transport)
//
// Subpackages:
// - frame: fixed header layout and validation
// - codec: external payload encodings (msgpack, sereal)
// - wire: dictionary <-> framed bytes
package protocol

package protocol

import "errors"

// Version is the current wire protocol version. Frames carrying any other
// version are rejected.
const Version uint32 = 1

var (
	ErrUnsupportedVersion  = errors.New("protocol: unsupported version")
	ErrLengthExceedsBuffer = errors.New("protocol: declared length exceeds received bytes")
	ErrShortHeader         = errors.New("protocol: short frame header")
	ErrFrameTooLarge       = errors.New("protocol: frame too large")
	ErrNotDictionary       = errors.New("protocol: top-level value is not a dictionary")
	ErrEncode              = errors.New("protocol: encode failed")
	ErrDecode              = errors.New("protocol: decode failed")
	ErrTransport           = errors.New("protocol: transport failure")
)

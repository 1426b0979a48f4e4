package wire

import "errors"

// ErrUnsupportedProtocol is returned when an RPC arrives carrying a
// protocol version the current node cannot handle.
var ErrUnsupportedProtocol = errors.New("wire: protocol version not supported")

// LatestProtocolVersion is the protocol version this build speaks. A
// header whose major version differs from it is rejected; a differing
// minor or patch version is accepted (see CheckRPCHeader).
const LatestProtocolVersion = "1.0.0"

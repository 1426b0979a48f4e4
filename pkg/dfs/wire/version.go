package wire

import (
	"fmt"

	"github.com/hashicorp/go-version"
)

// CheckRPCHeader rejects a header carrying a protocol version this build
// cannot speak: a different major version is assumed wire-incompatible,
// a newer minor/patch is accepted (this build may simply be missing
// optional fields the peer sends).
func CheckRPCHeader(h RPCHeader) error {
	if h.ProtocolVersion == "" {
		return fmt.Errorf("%w: empty protocol version", ErrUnsupportedProtocol)
	}

	peerVersion, err := version.NewVersion(h.ProtocolVersion)
	if err != nil {
		return fmt.Errorf("%w: malformed version %q: %v", ErrUnsupportedProtocol, h.ProtocolVersion, err)
	}
	localVersion, err := version.NewVersion(LatestProtocolVersion)
	if err != nil {
		return fmt.Errorf("wire: malformed local version %q: %w", LatestProtocolVersion, err)
	}

	if peerVersion.Segments()[0] != localVersion.Segments()[0] {
		return fmt.Errorf("%w: peer protocol %s, local %s", ErrUnsupportedProtocol, h.ProtocolVersion, LatestProtocolVersion)
	}
	return nil
}

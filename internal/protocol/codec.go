package protocol

import "gridctl/internal/coreerr"

// PacketCodec is the external collaborator that owns the lower-level packet
// byte-layout: class tags, BRC header encoding, checksum computation. The
// core only ever calls these two opaque operations.
type PacketCodec interface {
	// EncodePacket renders one Descriptor as the payload bytes the Framer
	// will wrap with its trailing newline (see framer.Frame).
	EncodePacket(d Descriptor) ([]byte, error)

	// DecodePacketFrame parses one Framer-delimited payload into zero or
	// more DecodedMessages (a single frame carries exactly one class
	// broadcast in this build, but the signature allows a codec that packs
	// several).
	DecodePacketFrame(payload []byte) ([]DecodedMessage, error)
}

// initialization state for the process-wide codec singleton: the codec is
// initialized once at process start and consulted synchronously
// thereafter. Typed accessors fail with Protocol("not initialized") rather
// than leaking a nil codec into every call site.
var current PacketCodec

// InitProtocol installs the process-wide PacketCodec. Call once at startup.
func InitProtocol(c PacketCodec) { current = c }

// Teardown clears the process-wide codec (tests call this between cases).
func Teardown() { current = nil }

// Current returns the installed codec, or an error if InitProtocol was
// never called.
func Current() (PacketCodec, error) {
	if current == nil {
		return nil, coreerr.New(coreerr.Protocol, "protocol.Current", "not initialized")
	}
	return current, nil
}

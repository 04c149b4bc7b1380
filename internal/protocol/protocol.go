// Package protocol serializes DMX universes into sACN (E1.31) or Art-Net
// packets and transmits them over UDP. Senders keep one long-lived socket per
// universe, created on first use and reused across frames.
package protocol

import (
	"fmt"
	"net"

	"github.com/jshea2/NMS-DMX-App/internal/config"
	"github.com/jshea2/NMS-DMX-App/internal/dmx"
)

// Sender transmits one universe's worth of DMX data per call. Sends are
// fire-and-forget: an error means this frame was not delivered, nothing more.
type Sender interface {
	Send(universe int, data *dmx.Universe) error
	Close() error
}

// New builds the sender for the configured protocol.
func New(network config.NetworkConfig) (Sender, error) {
	switch network.Protocol {
	case config.ProtocolArtNet:
		return NewArtNetSender(network.ArtNet), nil
	case config.ProtocolSACN:
		return NewSACNSender(network.SACN), nil
	default:
		return nil, fmt.Errorf("unknown output protocol %q", network.Protocol)
	}
}

// localAddr resolves an optional bind address ("" means any interface).
func localAddr(bindAddress string) *net.UDPAddr {
	if bindAddress == "" {
		return nil
	}
	ip := net.ParseIP(bindAddress)
	if ip == nil {
		return nil
	}
	return &net.UDPAddr{IP: ip}
}

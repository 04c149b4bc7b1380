package protocol

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/jshea2/NMS-DMX-App/internal/config"
	"github.com/jshea2/NMS-DMX-App/internal/dmx"
)

const (
	artNetHeaderLen = 18
	opDMX           = 0x5000
	artNetProtoVer  = 14
)

// ArtNetSender transmits ArtDMX packets to a configured destination, which
// may be a broadcast address. One UDP socket per universe, reused per frame.
type ArtNetSender struct {
	cfg config.ArtNetConfig

	mu    sync.Mutex
	conns map[int]*net.UDPConn
}

// NewArtNetSender creates a sender; sockets are opened lazily on first send.
func NewArtNetSender(cfg config.ArtNetConfig) *ArtNetSender {
	if cfg.Port == 0 {
		cfg.Port = 6454
	}
	if cfg.Destination == "" {
		cfg.Destination = "255.255.255.255"
	}
	return &ArtNetSender{cfg: cfg, conns: make(map[int]*net.UDPConn)}
}

// Send encodes and transmits one ArtDMX packet for the universe.
func (s *ArtNetSender) Send(universe int, data *dmx.Universe) error {
	conn, err := s.conn(universe)
	if err != nil {
		return err
	}

	packet := EncodeArtDMX(s.cfg.Net, s.cfg.Subnet, universe, data)
	if _, err := conn.Write(packet); err != nil {
		return fmt.Errorf("artnet send universe %d: %w", universe, err)
	}
	return nil
}

func (s *ArtNetSender) conn(universe int) (*net.UDPConn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conn, ok := s.conns[universe]; ok {
		return conn, nil
	}

	dst := &net.UDPAddr{IP: net.ParseIP(s.cfg.Destination), Port: s.cfg.Port}
	if dst.IP == nil {
		return nil, fmt.Errorf("invalid artnet destination %q", s.cfg.Destination)
	}

	conn, err := net.DialUDP("udp4", localAddr(s.cfg.BindAddress), dst)
	if err != nil {
		return nil, fmt.Errorf("artnet socket universe %d: %w", universe, err)
	}

	if isBroadcast(s.cfg.Destination) {
		if err := enableBroadcast(conn); err != nil {
			log.Warn().Err(err).Msg("Unable to set SO_BROADCAST on Art-Net socket")
		}
		log.Debug().Str("destination", s.cfg.Destination).Int("universe", universe).Msg("Art-Net broadcast socket opened")
	}

	s.conns[universe] = conn
	return conn, nil
}

// Close releases all open sockets.
func (s *ArtNetSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for universe, conn := range s.conns {
		if err := conn.Close(); err != nil {
			log.Error().Err(err).Int("universe", universe).Msg("Error closing Art-Net socket")
		}
	}
	s.conns = make(map[int]*net.UDPConn)
	return nil
}

// EncodeArtDMX builds a bit-exact ArtDMX packet: 18-byte header followed by
// the 512 DMX data bytes. The sequence byte is 0 (sequencing disabled).
func EncodeArtDMX(netNum, subnet, universe int, data *dmx.Universe) []byte {
	packet := make([]byte, artNetHeaderLen+512)

	copy(packet[0:8], "Art-Net\x00")
	packet[8] = byte(opDMX & 0xFF) // OpCode, little-endian
	packet[9] = byte(opDMX >> 8)
	packet[10] = 0 // protocol version, big-endian
	packet[11] = artNetProtoVer
	packet[12] = 0 // sequence disabled
	packet[13] = 0 // physical port

	portAddress := PortAddress(netNum, subnet, universe)
	packet[14] = byte(portAddress & 0xFF) // port-address, little-endian
	packet[15] = byte(portAddress >> 8)

	packet[16] = 512 >> 8 // length, big-endian
	packet[17] = 512 & 0xFF

	copy(packet[artNetHeaderLen:], data[:])
	return packet
}

// PortAddress packs net/subnet/universe into the 15-bit Art-Net port address.
func PortAddress(netNum, subnet, universe int) uint16 {
	return uint16(netNum&0x7F)<<8 | uint16(subnet&0x0F)<<4 | uint16(universe&0x0F)
}

// enableBroadcast sets SO_BROADCAST so writes to x.y.z.255 destinations are
// accepted by the kernel.
func enableBroadcast(conn *net.UDPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	ctlErr := raw.Control(func(fd uintptr) {
		sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
	})
	if ctlErr != nil {
		return ctlErr
	}
	return sockErr
}

// isBroadcast reports whether the destination looks like a broadcast address,
// matching the convention of the settings UI (x.y.z.255 or the limited
// broadcast address).
func isBroadcast(destination string) bool {
	return destination == "255.255.255.255" || strings.HasSuffix(destination, ".255")
}

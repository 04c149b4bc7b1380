package protocol

import (
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jshea2/NMS-DMX-App/internal/config"
	"github.com/jshea2/NMS-DMX-App/internal/dmx"
)

// E1.31 constants. Packet layout per ANSI E1.31-2016.
const (
	sacnPort      = 5568
	sacnPacketLen = 638

	rootVector    = 0x00000004 // VECTOR_ROOT_E131_DATA
	framingVector = 0x00000002 // VECTOR_E131_DATA_PACKET
	dmpVector     = 0x02       // VECTOR_DMP_SET_PROPERTY

	// SourceName identifies this transmitter in the E1.31 framing layer.
	SourceName = "NMS DMX Control"
)

var acnPacketIdentifier = [12]byte{'A', 'S', 'C', '-', 'E', '1', '.', '1', '7', 0, 0, 0}

// SACNSender transmits E1.31 data packets, multicast by default or unicast to
// an explicit destination list. One socket per (universe, destination),
// reused across frames.
type SACNSender struct {
	cfg config.SACNConfig
	cid [16]byte

	mu    sync.Mutex
	conns map[string]*net.UDPConn
	seq   map[int]uint8
}

// NewSACNSender creates a sender. The CID is derived deterministically from
// the source name so receivers see a stable source across restarts.
func NewSACNSender(cfg config.SACNConfig) *SACNSender {
	if cfg.Priority == 0 {
		cfg.Priority = 100
	}
	return &SACNSender{
		cfg:   cfg,
		cid:   [16]byte(uuid.NewSHA1(uuid.NameSpaceOID, []byte(SourceName))),
		conns: make(map[string]*net.UDPConn),
		seq:   make(map[int]uint8),
	}
}

// Send encodes and transmits one E1.31 data packet per destination for the
// universe. The per-universe sequence number advances once per frame.
func (s *SACNSender) Send(universe int, data *dmx.Universe) error {
	s.mu.Lock()
	seq := s.seq[universe]
	s.seq[universe] = seq + 1
	s.mu.Unlock()

	packet := EncodeE131(s.cid, universe, seq, byte(clampPriority(s.cfg.Priority)), data)

	destinations := s.destinations(universe)
	if len(destinations) == 0 {
		return nil
	}

	var firstErr error
	for _, dest := range destinations {
		conn, err := s.conn(universe, dest)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if _, err := conn.Write(packet); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("sacn send universe %d to %s: %w", universe, dest, err)
		}
	}
	return firstErr
}

// destinations returns the target addresses for a universe: the E1.31
// multicast group, or the configured unicast list.
func (s *SACNSender) destinations(universe int) []string {
	if s.cfg.Multicast {
		return []string{MulticastGroup(universe)}
	}
	return s.cfg.UnicastDestinations
}

func (s *SACNSender) conn(universe int, dest string) (*net.UDPConn, error) {
	key := fmt.Sprintf("%d/%s", universe, dest)

	s.mu.Lock()
	defer s.mu.Unlock()

	if conn, ok := s.conns[key]; ok {
		return conn, nil
	}

	ip := net.ParseIP(dest)
	if ip == nil {
		return nil, fmt.Errorf("invalid sacn destination %q", dest)
	}

	conn, err := net.DialUDP("udp4", localAddr(s.cfg.BindAddress), &net.UDPAddr{IP: ip, Port: sacnPort})
	if err != nil {
		return nil, fmt.Errorf("sacn socket universe %d: %w", universe, err)
	}

	s.conns[key] = conn
	return conn, nil
}

// Close releases all open sockets. Sequence counters are kept; E1.31
// receivers tolerate sequence continuation after a restart.
func (s *SACNSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, conn := range s.conns {
		if err := conn.Close(); err != nil {
			log.Error().Err(err).Str("socket", key).Msg("Error closing sACN socket")
		}
	}
	s.conns = make(map[string]*net.UDPConn)
	return nil
}

// MulticastGroup returns the E1.31 multicast address for a universe:
// 239.255.<universe high byte>.<universe low byte>.
func MulticastGroup(universe int) string {
	return fmt.Sprintf("239.255.%d.%d", (universe>>8)&0xFF, universe&0xFF)
}

// EncodeE131 builds a full 638-byte E1.31 data packet carrying 512 slots.
func EncodeE131(cid [16]byte, universe int, sequence, priority byte, data *dmx.Universe) []byte {
	packet := make([]byte, sacnPacketLen)

	// Root layer
	putUint16(packet[0:], 0x0010) // preamble size
	putUint16(packet[2:], 0x0000) // postamble size
	copy(packet[4:16], acnPacketIdentifier[:])
	putFlagsLength(packet[16:], sacnPacketLen-16)
	putUint32(packet[18:], rootVector)
	copy(packet[22:38], cid[:])

	// Framing layer
	putFlagsLength(packet[38:], sacnPacketLen-38)
	putUint32(packet[40:], framingVector)
	copy(packet[44:108], SourceName) // 64-byte field, NUL-padded
	packet[108] = priority
	putUint16(packet[109:], 0) // synchronization address
	packet[111] = sequence
	packet[112] = 0 // options
	putUint16(packet[113:], uint16(universe))

	// DMP layer
	putFlagsLength(packet[115:], sacnPacketLen-115)
	packet[117] = dmpVector
	packet[118] = 0xA1         // address type & data type
	putUint16(packet[119:], 0) // first property address
	putUint16(packet[121:], 1) // address increment
	putUint16(packet[123:], 513)
	packet[125] = 0x00 // DMX start code
	copy(packet[126:], data[:])

	return packet
}

// putFlagsLength writes an ACN flags+length field: high nibble 0x7, low 12
// bits the PDU length.
func putFlagsLength(b []byte, length int) {
	putUint16(b, 0x7000|uint16(length&0x0FFF))
}

func putUint16(b []byte, v uint16) {
	b[0] = byte(v >> 8)
	b[1] = byte(v)
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

// clampPriority bounds the sACN priority to its legal 0-200 range.
func clampPriority(p int) int {
	if p < 0 {
		return 0
	}
	if p > 200 {
		return 200
	}
	return p
}

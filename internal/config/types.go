// Package config manages the persisted show configuration: fixture profiles,
// patched fixtures, looks, the client registry and output/network settings.
package config

// Channel is one addressable slot within a fixture profile.
type Channel struct {
	Name   string `json:"name"`
	Offset int    `json:"offset"`
	Group  string `json:"group,omitempty"`
}

// FixtureProfile describes the channel layout shared by fixtures of one model.
type FixtureProfile struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Channels []Channel `json:"channels"`
}

// Fixture is a patched device: a profile placed at a start address in a universe.
type Fixture struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ProfileID    string `json:"profileId"`
	Universe     int    `json:"universe"`
	StartAddress int    `json:"startAddress"` // 1-based DMX address
	ShowOnMain   bool   `json:"showOnMain"`
}

// Look is a named preset of target channel values, activatable at a level.
// Targets map fixture id to channel name to a 0-100 target value.
type Look struct {
	ID      string                        `json:"id"`
	Name    string                        `json:"name"`
	Color   string                        `json:"color,omitempty"`
	Targets map[string]map[string]float64 `json:"targets"`
}

// Client is a registered device identity and its assigned role.
type Client struct {
	ID             string `json:"id"`
	Role           string `json:"role"`
	Nickname       string `json:"nickname"`
	PendingRequest bool   `json:"pendingRequest"`
	FirstSeen      int64  `json:"firstSeen"`
	LastSeen       int64  `json:"lastSeen"`
	LastIP         string `json:"lastIp"`
	UserAgent      string `json:"userAgent,omitempty"`
}

// SACNConfig holds sACN (E1.31) output settings.
type SACNConfig struct {
	Priority            int      `json:"priority"`
	Multicast           bool     `json:"multicast"`
	UnicastDestinations []string `json:"unicastDestinations"`
	BindAddress         string   `json:"bindAddress"`
}

// ArtNetConfig holds Art-Net output settings.
type ArtNetConfig struct {
	Net         int    `json:"net"`
	Subnet      int    `json:"subnet"`
	Destination string `json:"destination"`
	Port        int    `json:"port"`
	BindAddress string `json:"bindAddress"`
}

// Protocol selector values for NetworkConfig.Protocol.
const (
	ProtocolSACN   = "sacn"
	ProtocolArtNet = "artnet"
)

// NetworkConfig selects the wire protocol and frame rate for DMX output.
type NetworkConfig struct {
	Protocol  string       `json:"protocol"`
	SACN      SACNConfig   `json:"sacn"`
	ArtNet    ArtNetConfig `json:"artnet"`
	OutputFPS int          `json:"outputFps"`
}

// ServerConfig holds the HTTP/WebSocket bind settings.
type ServerConfig struct {
	Port        int    `json:"port"`
	BindAddress string `json:"bindAddress"`
}

// WebServerConfig holds client-facing behavior settings.
type WebServerConfig struct {
	DefaultClientRole  string `json:"defaultClientRole"`
	ShowConnectedUsers bool   `json:"showConnectedUsers"`
}

// Layout is a saved UI arrangement. Presentation-only; the server just stores it.
type Layout struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Items []string `json:"items,omitempty"`
}

// Document is the complete persisted show configuration.
type Document struct {
	FixtureProfiles []FixtureProfile `json:"fixtureProfiles"`
	Fixtures        []Fixture        `json:"fixtures"`
	Looks           []Look           `json:"looks"`
	Clients         []Client         `json:"clients"`
	Network         NetworkConfig    `json:"network"`
	Server          ServerConfig     `json:"server"`
	WebServer       WebServerConfig  `json:"webServer"`
	ShowLayouts     []Layout         `json:"showLayouts"`
	ActiveLayoutID  string           `json:"activeLayoutId"`
}

// Profile returns the profile a fixture references, or nil if the reference
// is dangling.
func (d *Document) Profile(f Fixture) *FixtureProfile {
	for i := range d.FixtureProfiles {
		if d.FixtureProfiles[i].ID == f.ProfileID {
			return &d.FixtureProfiles[i]
		}
	}
	return nil
}

// LookByID returns the look with the given id, or nil.
func (d *Document) LookByID(id string) *Look {
	for i := range d.Looks {
		if d.Looks[i].ID == id {
			return &d.Looks[i]
		}
	}
	return nil
}

// ClientByID returns the registered client with the given id, or nil.
func (d *Document) ClientByID(id string) *Client {
	for i := range d.Clients {
		if d.Clients[i].ID == id {
			return &d.Clients[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() Document {
	out := *d

	out.FixtureProfiles = make([]FixtureProfile, len(d.FixtureProfiles))
	for i, p := range d.FixtureProfiles {
		p.Channels = append([]Channel(nil), p.Channels...)
		out.FixtureProfiles[i] = p
	}

	out.Fixtures = append([]Fixture(nil), d.Fixtures...)
	out.Clients = append([]Client(nil), d.Clients...)

	out.Looks = make([]Look, len(d.Looks))
	for i, l := range d.Looks {
		targets := make(map[string]map[string]float64, len(l.Targets))
		for fixtureID, channels := range l.Targets {
			m := make(map[string]float64, len(channels))
			for name, v := range channels {
				m[name] = v
			}
			targets[fixtureID] = m
		}
		l.Targets = targets
		out.Looks[i] = l
	}

	out.Network.SACN.UnicastDestinations = append([]string(nil), d.Network.SACN.UnicastDestinations...)

	out.ShowLayouts = make([]Layout, len(d.ShowLayouts))
	for i, l := range d.ShowLayouts {
		l.Items = append([]string(nil), l.Items...)
		out.ShowLayouts[i] = l
	}

	return out
}

// normalize repairs invariants after a load or replace: channel offsets within
// each profile are rewritten to be contiguous 0..N-1 in declared order.
func (d *Document) normalize() {
	for i := range d.FixtureProfiles {
		for j := range d.FixtureProfiles[i].Channels {
			d.FixtureProfiles[i].Channels[j].Offset = j
		}
	}
	if d.Network.Protocol == "" {
		d.Network.Protocol = ProtocolSACN
	}
	if d.Network.OutputFPS == 0 {
		d.Network.OutputFPS = 30
	}
	if d.Network.ArtNet.Port == 0 {
		d.Network.ArtNet.Port = 6454
	}
	if d.Network.ArtNet.Destination == "" {
		d.Network.ArtNet.Destination = "255.255.255.255"
	}
	if d.Network.SACN.Priority == 0 {
		d.Network.SACN.Priority = 100
	}
	if d.WebServer.DefaultClientRole == "" {
		d.WebServer.DefaultClientRole = "viewer"
	}
}

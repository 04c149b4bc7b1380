// Package dmx implements the HTP blend engine: a pure function from the live
// control state and the show configuration to per-universe DMX byte arrays.
package dmx

import (
	"math"

	"github.com/jshea2/NMS-DMX-App/internal/config"
	"github.com/jshea2/NMS-DMX-App/internal/live"
)

// Universe is one DMX512 address space. Index 0 is DMX address 1.
type Universe [512]byte

// Render computes the output bytes for every universe containing at least one
// patched fixture. It holds no cache and reads nothing but its arguments, so
// it is safe to call concurrently with state mutation (on snapshots).
//
// Per channel, the resolved byte is the HTP max over the direct fixture value
// and every active look's contribution. A fixture with a dangling profile
// reference, or a channel whose address falls outside 1..512, is skipped;
// a bad patch never aborts the frame.
func Render(state live.State, doc config.Document) map[int]*Universe {
	universes := make(map[int]*Universe)
	for _, fixture := range doc.Fixtures {
		if _, ok := universes[fixture.Universe]; !ok {
			universes[fixture.Universe] = &Universe{}
		}
	}

	if state.Blackout {
		return universes
	}

	for _, fixture := range doc.Fixtures {
		profile := doc.Profile(fixture)
		if profile == nil {
			continue
		}
		universe := universes[fixture.Universe]

		for _, channel := range profile.Channels {
			addr := fixture.StartAddress + channel.Offset
			if addr < 1 || addr > 512 {
				continue
			}
			universe[addr-1] = channelValue(state, doc, fixture.ID, channel.Name)
		}
	}

	return universes
}

// channelValue resolves one fixture channel: the max of all candidate sources,
// converted from percent to a byte. Candidates are the direct control value
// and, for each look with a positive level, the look's target scaled by that
// level. Sources are never summed.
func channelValue(state live.State, doc config.Document, fixtureID, channelName string) byte {
	var max float64

	if channels, ok := state.Fixtures[fixtureID]; ok {
		if v := channels[channelName]; v > 0 && v > max {
			max = v
		}
	}

	for _, look := range doc.Looks {
		level := state.Looks[look.ID]
		if level <= 0 {
			continue
		}
		target, ok := look.Targets[fixtureID]
		if !ok {
			continue
		}
		if t := target[channelName]; t > 0 {
			if effective := t * level; effective > max {
				max = effective
			}
		}
	}

	return percentToByte(max)
}

// percentToByte converts a 0-100 level to a 0-255 byte, rounding half away
// from zero and clamping.
func percentToByte(v float64) byte {
	b := math.Round(v / 100 * 255)
	if b <= 0 {
		return 0
	}
	if b >= 255 {
		return 255
	}
	return byte(b)
}

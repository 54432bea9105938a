package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bigbag/azinc-flasher/internal/isp"
	"github.com/bigbag/azinc-flasher/internal/protocol"
)

// parseByte accepts hex with or without a 0x prefix.
func parseByte(s string) (byte, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0, err
	}
	return byte(v), nil
}

// parseFuses parses low:high:ext.
func parseFuses(s string) (isp.Fuses, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return isp.Fuses{}, fmt.Errorf("invalid fuses %q: want low:high:ext", s)
	}

	var bs [3]byte
	for i, p := range parts {
		b, err := parseByte(p)
		if err != nil {
			return isp.Fuses{}, fmt.Errorf("invalid fuse %q: %w", p, err)
		}
		bs[i] = b
	}
	return isp.Fuses{Low: bs[0], High: bs[1], Extended: bs[2]}, nil
}

func parseRegion(s string) (protocol.Region, error) {
	switch strings.ToLower(s) {
	case "flash":
		return protocol.Flash, nil
	case "eeprom", "ee":
		return protocol.EEPROM, nil
	default:
		return protocol.Region{}, fmt.Errorf("unknown region %q (want flash or eeprom)", s)
	}
}

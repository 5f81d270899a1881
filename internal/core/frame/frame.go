// Package frame implements the point-to-point link framing codec.
package frame

import (
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/frr/internal/core"
)

// HeaderLen is the size of the PPP protocol field prepended by Add.
const HeaderLen = 2

// ToPPP maps a network protocol number to its PPP protocol field.
func ToPPP(proto core.EtherType) (layers.PPPType, error) {
	switch proto {
	case core.EtherTypeIPv4:
		return layers.PPPTypeIPv4, nil
	case core.EtherTypeIPv6:
		return layers.PPPTypeIPv6, nil
	default:
		return 0, fmt.Errorf("frame: ethertype %s: %w", proto, core.ErrUnsupportedNetwork)
	}
}

// FromPPP maps a PPP protocol field back to a network protocol number.
func FromPPP(t layers.PPPType) (core.EtherType, error) {
	switch t {
	case layers.PPPTypeIPv4:
		return core.EtherTypeIPv4, nil
	case layers.PPPTypeIPv6:
		return core.EtherTypeIPv6, nil
	default:
		return 0, fmt.Errorf("frame: ppp type 0x%04x: %w", uint16(t), core.ErrUnsupportedNetwork)
	}
}

// Add prepends the PPP header for proto to pkt.
func Add(pkt *core.Packet, proto core.EtherType) error {
	pppType, err := ToPPP(proto)
	if err != nil {
		return err
	}
	buf := gopacket.NewSerializeBufferExpectedSize(HeaderLen, len(pkt.Data))
	payload, err := buf.AppendBytes(len(pkt.Data))
	if err != nil {
		return err
	}
	copy(payload, pkt.Data)
	ppp := &layers.PPP{PPPType: pppType}
	if err := ppp.SerializeTo(buf, gopacket.SerializeOptions{}); err != nil {
		return fmt.Errorf("frame: serialize ppp: %w", err)
	}
	pkt.Data = buf.Bytes()
	return nil
}

// Strip removes the PPP header from pkt and returns the protocol it carried.
// pkt is left untouched on error.
func Strip(pkt *core.Packet) (core.EtherType, error) {
	pppType, err := Peek(pkt)
	if err != nil {
		return 0, err
	}
	proto, err := FromPPP(pppType)
	if err != nil {
		return 0, err
	}
	pkt.Data = pkt.Data[HeaderLen:]
	return proto, nil
}

// Peek decodes the PPP protocol field without removing it.
func Peek(pkt *core.Packet) (layers.PPPType, error) {
	if len(pkt.Data) < HeaderLen {
		return 0, fmt.Errorf("frame: %d bytes: %w", len(pkt.Data), core.ErrPacketTooShort)
	}
	decoded := gopacket.NewPacket(pkt.Data, layers.LayerTypePPP, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	ppp, ok := decoded.Layer(layers.LayerTypePPP).(*layers.PPP)
	if !ok {
		if fail := decoded.ErrorLayer(); fail != nil {
			return 0, fmt.Errorf("frame: %v: %w", fail.Error(), core.ErrUnsupportedNetwork)
		}
		return 0, fmt.Errorf("frame: no ppp header: %w", core.ErrUnsupportedNetwork)
	}
	if len(ppp.Contents) != HeaderLen {
		return 0, fmt.Errorf("frame: %d-byte ppp header: %w", len(ppp.Contents), core.ErrUnsupportedNetwork)
	}
	return ppp.PPPType, nil
}

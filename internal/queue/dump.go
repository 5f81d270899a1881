package queue

import (
	"fmt"
	"io"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/frr/internal/core"
)

const (
	dumpHeader = "CURRENT QUEUE CONTENTS"
	dumpFooter = "END OF QUEUE"
)

// Dump writes a human-readable listing of the queue, head first, one packet
// summary per line. The output is meant for debugging, not for parsing.
func (q *Queue) Dump(w io.Writer) error {
	var sb strings.Builder
	sb.WriteString(dumpHeader)
	sb.WriteByte('\n')
	for pkt := range q.All() {
		sb.WriteString(Summary(pkt))
		sb.WriteByte('\n')
	}
	sb.WriteString(dumpFooter)
	sb.WriteByte('\n')
	_, err := io.WriteString(w, sb.String())
	return err
}

// Summary renders one packet as "#uid sizeB layers src -> dst". Framed and
// bare datagrams are both understood.
func Summary(pkt *core.Packet) string {
	first := firstLayer(pkt.Data)
	decoded := gopacket.NewPacket(pkt.Data, first, gopacket.DecodeOptions{Lazy: true, NoCopy: true})

	names := make([]string, 0, 4)
	for _, l := range decoded.Layers() {
		names = append(names, l.LayerType().String())
	}
	out := fmt.Sprintf("#%d %dB %s", pkt.UID, pkt.Size(), strings.Join(names, "/"))

	if net := decoded.NetworkLayer(); net != nil {
		src, dst := net.NetworkFlow().Endpoints()
		if tr := decoded.TransportLayer(); tr != nil {
			sport, dport := tr.TransportFlow().Endpoints()
			return fmt.Sprintf("%s %s:%s -> %s:%s", out, src, sport, dst, dport)
		}
		return fmt.Sprintf("%s %s -> %s", out, src, dst)
	}
	return out
}

// firstLayer guesses the outermost layer: a PPP protocol field for IPv4 or
// IPv6, otherwise a bare IP datagram.
func firstLayer(data []byte) gopacket.LayerType {
	if len(data) >= 2 && data[0] == 0x00 && (data[1] == 0x21 || data[1] == 0x57) {
		return layers.LayerTypePPP
	}
	if len(data) > 0 && data[0]>>4 == 6 {
		return layers.LayerTypeIPv6
	}
	return layers.LayerTypeIPv4
}

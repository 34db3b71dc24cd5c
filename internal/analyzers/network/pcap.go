package network

import (
	"fmt"
	"math"
	"os"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcapgo"

	"github.com/forensiq/filescope/internal/analyzers/analyze"
)

const topTalkerLimit = 10

// analyzePCAP summarizes a classic libpcap capture: link type, packet and
// byte counts, capture duration, and the busiest IPv4 sources.
func analyzePCAP(res *analyze.Result, path string) {
	f, openErr := os.Open(path)
	if openErr != nil {
		res.SetError(fmt.Sprintf("open capture: %v", openErr))

		return
	}
	defer f.Close()

	r, readerErr := pcapgo.NewReader(f)
	if readerErr != nil {
		res.SetError(fmt.Sprintf("read pcap header: %v", readerErr))

		return
	}

	res.FileType = "Packet Capture"
	res.Metadata["link_type"] = r.LinkType().String()
	res.Metadata["snap_length"] = int(r.Snaplen())

	var (
		packets    int
		totalBytes int64
		first      gopacket.CaptureInfo
		last       gopacket.CaptureInfo
		sources    = tally{}
		protocols  = tally{}
	)

	for packets < maxPackets {
		data, info, readErr := r.ReadPacketData()
		if readErr != nil {
			break
		}

		if packets == 0 {
			first = info
		}

		last = info
		packets++
		totalBytes += int64(info.Length)

		pkt := gopacket.NewPacket(data, r.LinkType(), gopacket.Lazy)
		if ipLayer := pkt.Layer(layers.LayerTypeIPv4); ipLayer != nil {
			if ip, ok := ipLayer.(*layers.IPv4); ok {
				sources.add(ip.SrcIP.String())
				protocols.add(ip.Protocol.String())
			}
		}
	}

	res.Metadata["packet_count"] = packets
	res.Metadata["total_bytes"] = totalBytes
	res.Metadata["packet_cap_reached"] = packets >= maxPackets

	if packets > 0 && last.Timestamp.After(first.Timestamp) {
		res.Metadata["capture_seconds"] = round2(last.Timestamp.Sub(first.Timestamp).Seconds())
	}

	if len(sources) > 0 {
		res.Metadata["top_talkers"] = sources.top(topTalkerLimit)
		res.Metadata["ip_protocols"] = protocols.counts()
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

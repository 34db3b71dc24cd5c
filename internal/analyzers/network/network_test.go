package network_test

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forensiq/filescope/internal/analyzers/network"
)

func writeLog(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

// writePCAP captures three UDP datagrams, two of them from 10.0.0.1, spread
// over two seconds.
func writePCAP(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "traffic.pcap")
	f, createErr := os.Create(path)
	require.NoError(t, createErr)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65535, layers.LinkTypeEthernet))

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	sources := []net.IP{
		{10, 0, 0, 1},
		{10, 0, 0, 1},
		{10, 0, 0, 9},
	}

	for i, src := range sources {
		eth := &layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01},
			DstMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02},
			EthernetType: layers.EthernetTypeIPv4,
		}
		ip := &layers.IPv4{
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolUDP,
			SrcIP:    src,
			DstIP:    net.IP{10, 0, 0, 2},
		}
		udp := &layers.UDP{SrcPort: 40000, DstPort: 53}
		require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

		buf := gopacket.NewSerializeBuffer()
		opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
		require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload([]byte("query"))))

		info := gopacket.CaptureInfo{
			Timestamp:     base.Add(time.Duration(i) * time.Second),
			CaptureLength: len(buf.Bytes()),
			Length:        len(buf.Bytes()),
		}
		require.NoError(t, w.WritePacket(info, buf.Bytes()))
	}

	return path
}

func TestAnalyzer_Identity(t *testing.T) {
	t.Parallel()

	a := network.New()
	assert.Equal(t, "network", a.Name())
	assert.Contains(t, a.Extensions(), ".pcap")
	assert.True(t, a.CanAnalyze("/var/log/auth.log"))
	assert.True(t, a.CanAnalyze("capture.CAP"))
	assert.False(t, a.CanAnalyze("notes.txt"))
}

func TestAnalyze_PCAPSummary(t *testing.T) {
	t.Parallel()

	path := writePCAP(t)

	res := network.New().Analyze(context.Background(), path)
	require.True(t, res.Success, res.ErrorMessage)

	assert.Equal(t, "Packet Capture", res.FileType)
	assert.Equal(t, "Ethernet", res.Metadata["link_type"])
	assert.Equal(t, 65535, res.Metadata["snap_length"])
	assert.Equal(t, 3, res.Metadata["packet_count"])
	assert.Equal(t, false, res.Metadata["packet_cap_reached"])
	assert.InDelta(t, 2.0, res.Metadata["capture_seconds"], 0.01)

	talkers, ok := res.Metadata["top_talkers"].([]map[string]any)
	require.True(t, ok)
	require.NotEmpty(t, talkers)
	assert.Equal(t, "10.0.0.1", talkers[0]["value"])
	assert.Equal(t, 2, talkers[0]["count"])

	protocols, ok := res.Metadata["ip_protocols"].(map[string]int)
	require.True(t, ok)
	assert.Equal(t, 3, protocols["UDP"])
}

func TestAnalyze_TruncatedPCAPFails(t *testing.T) {
	t.Parallel()

	path := writeLog(t, "broken.pcap", "\xd4\xc3\xb2")

	res := network.New().Analyze(context.Background(), path)
	require.False(t, res.Success)
	assert.Contains(t, res.ErrorMessage, "read pcap header")
}

func TestAnalyze_AccessLog(t *testing.T) {
	t.Parallel()

	content := `192.168.1.10 - alice [10/Oct/2023:13:55:36 +0000] "GET /index.html HTTP/1.1" 200 2326
192.168.1.10 - - [10/Oct/2023:13:55:40 +0000] "POST /login HTTP/1.1" 401 512
10.0.0.5 - - [10/Oct/2023:13:56:01 +0000] "GET /admin HTTP/1.1" 404 128
this line is not a request
`
	path := writeLog(t, "access.log", content)

	res := network.New().Analyze(context.Background(), path)
	require.True(t, res.Success, res.ErrorMessage)

	assert.Equal(t, "web_access", res.Metadata["log_format"])
	assert.Equal(t, 4, res.Metadata["line_count"])
	assert.Equal(t, 3, res.Metadata["lines_matched"])

	statuses, ok := res.Metadata["status_counts"].(map[string]int)
	require.True(t, ok)
	assert.Equal(t, map[string]int{"200": 1, "401": 1, "404": 1}, statuses)

	methods, ok := res.Metadata["method_counts"].(map[string]int)
	require.True(t, ok)
	assert.Equal(t, 2, methods["GET"])

	clients, ok := res.Metadata["top_clients"].([]map[string]any)
	require.True(t, ok)
	require.NotEmpty(t, clients)
	assert.Equal(t, "192.168.1.10", clients[0]["value"])
	assert.Equal(t, 2, clients[0]["count"])
}

func TestAnalyze_AuthLog(t *testing.T) {
	t.Parallel()

	content := `Oct 10 13:55:36 host sshd[123]: Failed password for root from 203.0.113.9 port 4242 ssh2
Oct 10 13:55:38 host sshd[123]: Failed password for invalid user admin from 203.0.113.9 port 4243 ssh2
Oct 10 13:55:40 host sshd[124]: Invalid user guest from 198.51.100.7 port 9999
Oct 10 13:56:00 host sshd[125]: Accepted publickey for deploy from 10.1.1.1 port 2222 ssh2
`
	path := writeLog(t, "auth.log", content)

	res := network.New().Analyze(context.Background(), path)
	require.True(t, res.Success, res.ErrorMessage)

	assert.Equal(t, "auth", res.Metadata["log_format"])
	assert.Equal(t, 2, res.Metadata["failed_logins"])
	assert.Equal(t, 1, res.Metadata["invalid_users"])
	assert.Equal(t, 1, res.Metadata["accepted_logins"])

	attackers, ok := res.Metadata["top_attacking_ips"].([]map[string]any)
	require.True(t, ok)
	require.NotEmpty(t, attackers)
	assert.Equal(t, "203.0.113.9", attackers[0]["value"])
	assert.Equal(t, 2, attackers[0]["count"])
}

func TestAnalyze_FirewallLog(t *testing.T) {
	t.Parallel()

	content := `Oct 10 kernel: [UFW BLOCK] IN=eth0 OUT= SRC=203.0.113.50 DST=10.0.0.2 LEN=40 PROTO=TCP SPT=55555 DPT=22
Oct 10 kernel: [UFW BLOCK] IN=eth0 OUT= SRC=203.0.113.50 DST=10.0.0.2 PROTO=TCP DPT=23
Oct 10 kernel: [UFW BLOCK] IN=eth0 OUT= SRC=198.51.100.99 DST=10.0.0.3 PROTO=UDP DPT=53
kernel: unrelated message
`
	path := writeLog(t, "iptables.log", content)

	res := network.New().Analyze(context.Background(), path)
	require.True(t, res.Success, res.ErrorMessage)

	assert.Equal(t, "firewall", res.Metadata["log_format"])
	assert.Equal(t, 3, res.Metadata["lines_matched"])

	sources, ok := res.Metadata["top_sources"].([]map[string]any)
	require.True(t, ok)
	require.NotEmpty(t, sources)
	assert.Equal(t, "203.0.113.50", sources[0]["value"])

	protocols, ok := res.Metadata["protocol_counts"].(map[string]int)
	require.True(t, ok)
	assert.Equal(t, map[string]int{"TCP": 2, "UDP": 1}, protocols)
}

func TestAnalyze_GenericLog(t *testing.T) {
	t.Parallel()

	content := `2023-10-10T08:00:00Z ERROR connection from 10.9.8.7 refused
2023-10-10T08:00:01Z INFO started worker
2023-10-10T08:00:02Z WARNING disk on 10.9.8.7 slow, replica 172.16.0.1 lagging
`
	path := writeLog(t, "app.log", content)

	res := network.New().Analyze(context.Background(), path)
	require.True(t, res.Success, res.ErrorMessage)

	assert.Equal(t, "generic", res.Metadata["log_format"])
	assert.Equal(t, 3, res.Metadata["line_count"])
	assert.Equal(t, 2, res.Metadata["unique_ips"])

	keywords, ok := res.Metadata["keyword_counts"].(map[string]int)
	require.True(t, ok)
	assert.Equal(t, map[string]int{"error": 1, "warning": 1}, keywords)

	ips, ok := res.Metadata["top_ips"].([]map[string]any)
	require.True(t, ok)
	require.NotEmpty(t, ips)
	assert.Equal(t, "10.9.8.7", ips[0]["value"])
	assert.Equal(t, 2, ips[0]["count"])
}

func TestAnalyze_MissingFileFails(t *testing.T) {
	t.Parallel()

	res := network.New().Analyze(context.Background(), filepath.Join(t.TempDir(), "absent.log"))
	require.False(t, res.Success)
	assert.Contains(t, res.ErrorMessage, "open log")
}

func TestAnalyze_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := network.New().Analyze(ctx, writeLog(t, "auth.log", "x"))
	require.False(t, res.Success)
	assert.Contains(t, res.ErrorMessage, "analysis cancelled")
}

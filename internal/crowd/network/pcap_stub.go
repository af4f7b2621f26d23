//go:build !pcap
// +build !pcap

package network

import (
	"context"
	"fmt"
)

// ReadPCAPFile is a stub implementation when PCAP support is disabled
// Build with -tags=pcap to enable PCAP file replay
func ReadPCAPFile(ctx context.Context, pcapFile string, udpPort int, handler SampleHandler, stats PacketStatsInterface, speed float64) (int, error) {
	return 0, fmt.Errorf("PCAP support not enabled: rebuild with -tags=pcap to enable PCAP file replay")
}

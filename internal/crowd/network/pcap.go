//go:build pcap
// +build pcap

package network

import (
	"context"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// pcapFileReader implements PCAPReader on top of gopacket/pcap.
// Only available when building with the 'pcap' build tag.
type pcapFileReader struct {
	handle *pcap.Handle
	source *gopacket.PacketSource
}

// NewPCAPReader creates a PCAPReader backed by libpcap.
func NewPCAPReader() PCAPReader {
	return &pcapFileReader{}
}

func (r *pcapFileReader) Open(filename string) error {
	handle, err := pcap.OpenOffline(filename)
	if err != nil {
		return err
	}
	r.handle = handle
	r.source = gopacket.NewPacketSource(handle, handle.LinkType())
	return nil
}

func (r *pcapFileReader) SetBPFFilter(filter string) error {
	if r.handle == nil {
		return fmt.Errorf("pcap reader not open")
	}
	return r.handle.SetBPFFilter(filter)
}

// NextPacket returns the UDP payload of the next packet, skipping anything
// without one. Returns nil, nil at end of file.
func (r *pcapFileReader) NextPacket() (*PCAPPacket, error) {
	if r.source == nil {
		return nil, fmt.Errorf("pcap reader not open")
	}
	for {
		packet := <-r.source.Packets()
		if packet == nil {
			return nil, nil // End of PCAP file
		}

		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue // Skip non-UDP packets (shouldn't happen with BPF filter)
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok {
			continue
		}
		if len(udp.Payload) == 0 {
			continue
		}

		return &PCAPPacket{
			Data:      udp.Payload,
			Timestamp: packet.Metadata().Timestamp,
		}, nil
	}
}

func (r *pcapFileReader) Close() {
	if r.handle != nil {
		r.handle.Close()
		r.handle = nil
		r.source = nil
	}
}

func (r *pcapFileReader) LinkType() int {
	if r.handle == nil {
		return 0
	}
	return int(r.handle.LinkType())
}

// ReadPCAPFile replays detection samples captured as UDP JSON datagrams.
// Pacing follows the capture timestamps scaled by speed; zero or negative
// replays as fast as the engine accepts.
func ReadPCAPFile(ctx context.Context, pcapFile string, udpPort int, handler SampleHandler, stats PacketStatsInterface, speed float64) (int, error) {
	return ReplayFromReader(ctx, NewPCAPReader(), pcapFile, udpPort, handler, stats, speed)
}

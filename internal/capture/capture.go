// Package capture records the RSP byte stream of a session into a pcap file
// so it can be inspected with Wireshark's GDB dissector.
package capture

import (
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// segmentSize bounds the payload of one synthetic TCP segment.
const segmentSize = 1460

// DefaultClientPort is the source port used for the client side.
const DefaultClientPort = 50000

// Recorder writes every observed chunk of the byte stream as TCP segments
// between a client and a server endpoint. Sequence numbers advance per
// direction so stream reassembly works in analyzers.
type Recorder struct {
	mu        sync.Mutex
	file      *os.File
	writer    *pcapgo.Writer
	client    *net.TCPAddr
	server    *net.TCPAddr
	clientSeq uint32
	serverSeq uint32
	packets   int
	err       error
	now       func() time.Time
}

// Endpoint returns a TCP address for host and port. Names and IPv6
// addresses map to 127.0.0.1 because segments are written as IPv4.
func Endpoint(host string, port int) *net.TCPAddr {
	ip := net.ParseIP(host).To4()
	if ip == nil {
		ip = net.IPv4(127, 0, 0, 1).To4()
	}
	return &net.TCPAddr{IP: ip, Port: port}
}

// NewRecorder creates path and writes the pcap file header.
func NewRecorder(path string, client, server *net.TCPAddr) (*Recorder, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create pcap file: %w", err)
	}
	writer := pcapgo.NewWriter(file)
	if err := writer.WriteFileHeader(65535, layers.LinkTypeEthernet); err != nil {
		file.Close()
		return nil, fmt.Errorf("write pcap header: %w", err)
	}
	return &Recorder{
		file:      file,
		writer:    writer,
		client:    client,
		server:    server,
		clientSeq: 1,
		serverSeq: 1,
		now:       time.Now,
	}, nil
}

// RecordSend records bytes sent to the server.
func (r *Recorder) RecordSend(data []byte) {
	r.record(data, true)
}

// RecordRecv records bytes received from the server.
func (r *Recorder) RecordRecv(data []byte) {
	r.record(data, false)
}

func (r *Recorder) record(data []byte, fromClient bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writer == nil || r.err != nil {
		return
	}
	for len(data) > 0 {
		n := min(len(data), segmentSize)
		if err := r.writeSegment(data[:n], fromClient); err != nil {
			r.err = err
			return
		}
		data = data[n:]
	}
}

func (r *Recorder) writeSegment(payload []byte, fromClient bool) error {
	src, dst := r.client, r.server
	srcMAC := []byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	dstMAC := []byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
	seq, ack := r.clientSeq, r.serverSeq
	if !fromClient {
		src, dst = dst, src
		srcMAC, dstMAC = dstMAC, srcMAC
		seq, ack = ack, seq
	}

	ethernet := &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       dstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    src.IP,
		DstIP:    dst.IP,
	}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(src.Port),
		DstPort: layers.TCPPort(dst.Port),
		ACK:     true,
		PSH:     true,
		Seq:     seq,
		Ack:     ack,
		Window:  65535,
	}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		return fmt.Errorf("tcp checksum: %w", err)
	}

	buffer := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buffer, opts, ethernet, ip, tcp, gopacket.Payload(payload)); err != nil {
		return fmt.Errorf("serialize packet: %w", err)
	}
	frame := buffer.Bytes()
	if err := r.writer.WritePacket(gopacket.CaptureInfo{
		Timestamp:     r.now(),
		CaptureLength: len(frame),
		Length:        len(frame),
	}, frame); err != nil {
		return fmt.Errorf("write packet: %w", err)
	}

	if fromClient {
		r.clientSeq += uint32(len(payload))
	} else {
		r.serverSeq += uint32(len(payload))
	}
	r.packets++
	return nil
}

// Packets returns the number of segments written.
func (r *Recorder) Packets() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.packets
}

// Err returns the first write error. Recording stops after it.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close closes the pcap file (idempotent).
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return r.err
	}
	err := r.file.Close()
	r.file = nil
	r.writer = nil
	if err != nil {
		return fmt.Errorf("close pcap file: %w", err)
	}
	return r.err
}

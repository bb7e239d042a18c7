// Package capture attaches the observation pipelines to network interfaces
// over AF_PACKET sockets. One attachment per interface feeds the receive
// path into the ingress pipeline and both paths into the classifier, the
// userspace analog of the XDP and tc hook points.
package capture

import (
	"bytes"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/gopacket/afpacket"
	"github.com/vishvananda/netlink"

	"github.com/laik/xnet/pkg/pipeline"
)

type Options struct {
	SnapLen      int
	BufferSizeMB int
	PollTimeout  time.Duration
}

func DefaultOptions() Options {
	return Options{
		SnapLen:      65535,
		BufferSizeMB: 8,
		PollTimeout:  100 * time.Millisecond,
	}
}

// Manager owns the live attachments. Interfaces can be attached and
// detached at runtime without touching the pipelines.
type Manager struct {
	opts       Options
	ingress    *pipeline.Ingress
	classifier *pipeline.Classifier
	devices    *pipeline.DeviceRegistry

	mu          sync.Mutex
	attachments map[string]*attachment
}

type attachment struct {
	iface       string
	mac         net.HardwareAddr
	withIngress bool
	handle      *afpacket.TPacket
	stopped     atomic.Bool
	done        chan struct{}
}

func NewManager(opts Options, ing *pipeline.Ingress, cls *pipeline.Classifier, devices *pipeline.DeviceRegistry) *Manager {
	return &Manager{
		opts:        opts,
		ingress:     ing,
		classifier:  cls,
		devices:     devices,
		attachments: make(map[string]*attachment),
	}
}

// Attach opens an AF_PACKET socket on iface and starts the read loop.
// withIngress additionally runs the receive-hook pipeline for inbound
// frames; the classifier runs for both directions regardless.
func (m *Manager) Attach(iface string, withIngress bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.attachments[iface]; exists {
		return fmt.Errorf("interface %s already attached", iface)
	}

	link, err := netlink.LinkByName(iface)
	if err != nil {
		return fmt.Errorf("failed to get interface %s: %w", iface, err)
	}

	handle, err := m.openHandle(iface)
	if err != nil {
		return fmt.Errorf("failed to open capture on %s: %w", iface, err)
	}

	a := &attachment{
		iface:       iface,
		mac:         link.Attrs().HardwareAddr,
		withIngress: withIngress,
		handle:      handle,
		done:        make(chan struct{}),
	}
	m.attachments[iface] = a
	go m.run(a)

	slog.Info("Attached capture", "interface", iface, "ingress", withIngress)
	return nil
}

// Detach stops the read loop for iface and closes its socket. Device
// mappings are left in place; ids stay stable across re-attachment.
func (m *Manager) Detach(iface string) error {
	m.mu.Lock()
	a, exists := m.attachments[iface]
	if exists {
		delete(m.attachments, iface)
	}
	m.mu.Unlock()

	if !exists {
		return fmt.Errorf("interface %s not attached", iface)
	}

	a.stopped.Store(true)
	a.handle.Close()
	<-a.done

	slog.Info("Detached capture", "interface", iface)
	return nil
}

// Attached lists the currently attached interfaces.
func (m *Manager) Attached() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.attachments))
	for iface := range m.attachments {
		out = append(out, iface)
	}
	return out
}

func (m *Manager) Close() {
	for _, iface := range m.Attached() {
		_ = m.Detach(iface)
	}
}

func (m *Manager) openHandle(iface string) (*afpacket.TPacket, error) {
	frameSize, blockSize, numBlocks, err := computeSizes(m.opts.BufferSizeMB, m.opts.SnapLen, os.Getpagesize())
	if err != nil {
		return nil, err
	}

	return afpacket.NewTPacket(
		afpacket.OptInterface(iface),
		afpacket.OptFrameSize(frameSize),
		afpacket.OptBlockSize(blockSize),
		afpacket.OptNumBlocks(numBlocks),
		afpacket.OptPollTimeout(m.opts.PollTimeout),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
}

func (m *Manager) run(a *attachment) {
	defer close(a.done)

	for {
		data, ci, err := a.handle.ReadPacketData()
		if err != nil {
			if a.stopped.Load() {
				return
			}
			if err == afpacket.ErrTimeout {
				continue
			}
			slog.Error("Capture read failed", "interface", a.iface, "error", err)
			return
		}

		wireLen := uint64(ci.Length)
		dir := a.direction(data)

		if a.withIngress && dir == pipeline.DirIngress {
			m.ingress.Process(data, wireLen)
		}

		// The device id is resolved per packet so mappings added by the
		// control plane after attachment take effect without reattaching.
		deviceID, _ := m.devices.Lookup(a.iface)
		m.classifier.Process(data, wireLen, deviceID, dir)
	}
}

// direction classifies a frame by its source MAC: frames sourced from the
// interface's own address are on the transmit path.
func (a *attachment) direction(frame []byte) pipeline.Direction {
	eth, ok := pipeline.DecodeEthernet(frame)
	if ok && len(a.mac) == 6 && bytes.Equal(eth.SrcMAC[:], a.mac) {
		return pipeline.DirEgress
	}
	return pipeline.DirIngress
}

// computeSizes derives TPACKET_V3 ring geometry from the requested buffer
// size, keeping the block size page-aligned.
func computeSizes(bufferSizeMB, snapLen, pageSize int) (frameSize, blockSize, numBlocks int, err error) {
	if snapLen < pageSize {
		frameSize = pageSize / (pageSize / snapLen)
	} else {
		frameSize = (snapLen/pageSize + 1) * pageSize
	}

	blockSize = frameSize * 128
	numBlocks = (bufferSizeMB * 1024 * 1024) / blockSize
	if numBlocks == 0 {
		return 0, 0, 0, fmt.Errorf("buffer size %dMB too small for snap length %d", bufferSizeMB, snapLen)
	}
	return frameSize, blockSize, numBlocks, nil
}

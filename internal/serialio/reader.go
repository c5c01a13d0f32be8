// Package serialio opens the POS printer's serial port, reassembles the
// raw byte stream into newline-delimited logical lines, and reconnects
// indefinitely across port closures and errors.
package serialio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/posagent/posagentd/internal/logger"
)

const reconnectDelay = 5 * time.Second

// knownPortPrefixes selects the /dev entries considered when no explicit
// port is configured and no known path is readable/writable; the matches
// are then sorted together, so the order of this list does not matter.
var knownPortPrefixes = []string{"ttyUSB", "ttyACM", "ttyS"}

// knownPortPaths is probed before falling back to a /dev scan.
var knownPortPaths = []string{"/dev/ttyUSB0", "/dev/ttyACM0", "/dev/ttyS0"}

// Config describes how to open the printer port.
type Config struct {
	// Port is an explicit device path. If empty, the port is auto-detected.
	Port string
	Baud int
}

// ApplyDefaults fills in the 9600-8N1 default baud when unset.
func (c *Config) ApplyDefaults() {
	if c.Baud == 0 {
		c.Baud = 9600
	}
}

// Reader streams newline-delimited lines from the configured port,
// calling onLine for each completed line and reconnecting on failure.
type Reader struct {
	cfg    Config
	onLine func(line string, arrivedAt time.Time)
}

// New builds a Reader. onLine is invoked synchronously for each completed
// line; callers with I/O to do (feeding a state machine) should keep it
// fast, mirroring the same non-blocking-callback contract as the
// transaction machine's own callbacks.
func New(cfg Config, onLine func(line string, arrivedAt time.Time)) *Reader {
	cfg.ApplyDefaults()
	return &Reader{cfg: cfg, onLine: onLine}
}

// Run opens the port and streams lines until ctx is canceled, reconnecting
// after reconnectDelay on any open or read error.
func (r *Reader) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		portName, err := r.resolvePort()
		if err != nil {
			logger.Warn("serialio: no port available, retrying", "error", err)
			if !sleepCtx(ctx, reconnectDelay) {
				return
			}
			continue
		}

		if !r.readPort(ctx, portName) {
			return
		}

		logger.Warn("serialio: port closed, reconnecting", "port", portName, "delay", reconnectDelay)
		if !sleepCtx(ctx, reconnectDelay) {
			return
		}
	}
}

// readPort opens one port session and streams lines until it closes or
// errors. Returns false if ctx was canceled (caller should stop), true if
// it should reconnect.
func (r *Reader) readPort(ctx context.Context, portName string) bool {
	mode := &serial.Mode{
		BaudRate: r.cfg.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		logger.Warn("serialio: open failed", "port", portName, "error", err)
		return true
	}
	defer func() { _ = port.Close() }()

	applyLowLatency(port, portName)

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		_ = port.Close()
		close(done)
	}()

	buf := make([]byte, 4096)
	var pending bytes.Buffer

	for {
		n, err := port.Read(buf)
		if n > 0 {
			pending.Write(buf[:n])
			now := time.Now()
			for _, line := range splitCompletedLines(&pending) {
				if r.onLine != nil {
					r.onLine(line, now)
				}
			}
		}
		if err != nil {
			select {
			case <-ctx.Done():
				return false
			default:
			}
			logger.Warn("serialio: read failed", "port", portName, "error", err)
			return true
		}

		select {
		case <-ctx.Done():
			return false
		default:
		}
	}
}

// splitCompletedLines extracts every CRLF- or LF-delimited line currently
// buffered, leaving any trailing incomplete fragment in buf for the next
// read.
func splitCompletedLines(buf *bytes.Buffer) []string {
	var lines []string
	data := buf.Bytes()

	start := 0
	for i := 0; i < len(data); i++ {
		if data[i] != '\n' {
			continue
		}
		end := i
		if end > start && data[end-1] == '\r' {
			end--
		}
		lines = append(lines, string(data[start:end]))
		start = i + 1
	}

	remainder := append([]byte(nil), data[start:]...)
	buf.Reset()
	buf.Write(remainder)

	return lines
}

// resolvePort implements the auto-detection order: explicit config wins;
// otherwise known paths are probed for access; otherwise /dev is scanned
// for known prefixes, sorted naturally.
func (r *Reader) resolvePort() (string, error) {
	if r.cfg.Port != "" {
		return r.cfg.Port, nil
	}

	for _, p := range knownPortPaths {
		if isAccessible(p) {
			return p, nil
		}
	}

	entries, err := os.ReadDir("/dev")
	if err != nil {
		return "", fmt.Errorf("serialio: failed to scan /dev: %w", err)
	}

	var candidates []string
	for _, e := range entries {
		name := e.Name()
		for _, prefix := range knownPortPrefixes {
			if len(name) > len(prefix) && name[:len(prefix)] == prefix {
				candidates = append(candidates, filepath.Join("/dev", name))
			}
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		ta := strings.TrimRight(a, "0123456789")
		tb := strings.TrimRight(b, "0123456789")
		if ta != tb {
			return ta < tb
		}
		na, _ := strconv.Atoi(a[len(ta):])
		nb, _ := strconv.Atoi(b[len(tb):])
		return na < nb
	})
	if len(candidates) == 0 {
		return "", fmt.Errorf("serialio: no serial port configured and none found under /dev")
	}
	return candidates[0], nil
}

func isAccessible(path string) bool {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}


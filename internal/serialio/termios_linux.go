//go:build linux

package serialio

import (
	"syscall"
	"unsafe"

	"go.bug.st/serial"

	"github.com/posagent/posagentd/internal/logger"
)

// These ioctl numbers and the serial_struct layout are Linux's
// include/uapi/linux/serial.h; ASYNC_LOW_LATENCY is bit 13 of
// serial_struct.flags.
const (
	tiocgserial      = 0x541E
	tiocsserial      = 0x541F
	asyncLowLatency  = 1 << 13
	serialStructSize = 72
)

// applyLowLatency sets ASYNC_LOW_LATENCY on the port so the kernel flushes
// received bytes to the reader immediately instead of coalescing them,
// which otherwise adds tens of milliseconds of jitter to line arrival
// timestamps. go.bug.st/serial doesn't expose this flag, so it's set by
// re-opening the device path directly for the single ioctl round trip.
func applyLowLatency(_ serial.Port, portName string) {
	fd, err := syscall.Open(portName, syscall.O_RDWR|syscall.O_NOCTTY, 0)
	if err != nil {
		logger.Warn("serialio: could not open port for low-latency ioctl", "port", portName, "error", err)
		return
	}
	defer func() { _ = syscall.Close(fd) }()

	var buf [serialStructSize]byte
	if _, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), tiocgserial, uintptr(unsafe.Pointer(&buf[0]))); errno != 0 {
		logger.Warn("serialio: TIOCGSERIAL failed", "port", portName, "error", errno)
		return
	}

	flags := *(*int32)(unsafe.Pointer(&buf[16]))
	if flags&asyncLowLatency != 0 {
		return
	}
	*(*int32)(unsafe.Pointer(&buf[16])) = flags | asyncLowLatency

	if _, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), tiocsserial, uintptr(unsafe.Pointer(&buf[0]))); errno != 0 {
		logger.Warn("serialio: TIOCSSERIAL failed", "port", portName, "error", errno)
	}
}

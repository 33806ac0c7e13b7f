// Package uinput creates and drives a virtual /dev/uinput keyboard,
// the far end of the remap: every primary/secondary edge the core
// engine decides on is written here as a real EV_KEY event.
package uinput

import (
	"encoding/binary"
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/mikla-tf/janus-remap/internal/evdev"
)

const (
	evSyn  = 0x00
	evKey  = 0x01
	busUSB = 0x03

	synReport = 0

	// rawEventSize is sizeof(struct input_event) on a 64-bit kernel.
	rawEventSize = 24
)

// marshalEvent encodes one wire-format input_event: a timeval
// timestamp (stamped with the current time, as the kernel itself
// would for a physically generated event) followed by type, code,
// value.
func marshalEvent(typ, code uint16, value int32) []byte {
	now := time.Now()
	tv := unix.Timeval{Sec: now.Unix(), Usec: int64(now.Nanosecond() / 1000)}

	buf := make([]byte, rawEventSize)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(tv.Sec))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(tv.Usec))
	binary.LittleEndian.PutUint16(buf[16:18], typ)
	binary.LittleEndian.PutUint16(buf[18:20], code)
	binary.LittleEndian.PutUint32(buf[20:24], uint32(value))
	return buf
}

// Device is a created virtual input device, implementing core.Sink.
type Device struct {
	fd     int
	closed atomic.Bool
}

// Create opens /dev/uinput, clones src's EV_KEY capability bitmap
// (plus every primary/secondary function code named in extraKeys, so
// the virtual device can emit codes the physical keyboard itself
// never generates — e.g. a CapsLock row whose secondary is Left Alt),
// and brings the device up under name.
func Create(src *evdev.Device, name string, extraKeys []uint16) (*Device, error) {
	fd, err := syscall.Open("/dev/uinput", syscall.O_WRONLY|syscall.O_NONBLOCK|syscall.O_CLOEXEC, 0)
	if err != nil {
		return nil, wrapErr("opening /dev/uinput", err)
	}
	d := &Device{fd: fd}

	if err := d.ioctlSimple(uiSetEvbit, uintptr(evKey)); err != nil {
		d.abort()
		return nil, wrapErr("UI_SET_EVBIT EV_KEY", err)
	}

	keys, err := src.CapableKeys()
	if err != nil {
		d.abort()
		return nil, wrapErr("reading source capabilities", err)
	}
	seen := make(map[uint16]bool, len(keys)+len(extraKeys))
	for _, code := range append(keys, extraKeys...) {
		if seen[code] {
			continue
		}
		seen[code] = true
		if err := d.ioctlSimple(uiSetKeybit, uintptr(code)); err != nil {
			d.abort()
			return nil, wrapErr("UI_SET_KEYBIT", err)
		}
	}

	setup := uinputSetup{ID: inputID{BusType: busUSB, Vendor: 0x1, Product: 0x1, Version: 1}}
	copy(setup.Name[:], name)
	if _, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(d.fd), uiDevSetup, uintptr(unsafe.Pointer(&setup))); errno != 0 {
		d.abort()
		return nil, wrapErr("UI_DEV_SETUP", errno)
	}
	if _, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(d.fd), uiDevCreate, 0); errno != 0 {
		d.abort()
		return nil, wrapErr("UI_DEV_CREATE", errno)
	}
	return d, nil
}

func (d *Device) ioctlSimple(req uintptr, arg uintptr) error {
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(d.fd), req, arg)
	if errno != 0 {
		return errno
	}
	return nil
}

func (d *Device) abort() {
	_ = syscall.Close(d.fd)
}

// Emit implements core.Sink: writes one EV_KEY edge followed by an
// EV_SYN/SYN_REPORT so the event reaches consumers as a single input
// frame.
func (d *Device) Emit(code uint16, value int32) error {
	if d.closed.Load() {
		return syscall.EBADF
	}
	if err := d.write(evKey, code, value); err != nil {
		return wrapErr("writing EV_KEY", err)
	}
	if err := d.write(evSyn, synReport, 0); err != nil {
		return wrapErr("writing EV_SYN", err)
	}
	return nil
}

func (d *Device) write(typ, code uint16, value int32) error {
	_, err := syscall.Write(d.fd, marshalEvent(typ, code, value))
	return err
}

// Close tears the virtual device down (UI_DEV_DESTROY) and closes the fd.
func (d *Device) Close() error {
	if d.closed.Swap(true) {
		return syscall.EBADF
	}
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(d.fd), uiDevDestroy, 0)
	closeErr := syscall.Close(d.fd)
	if errno != 0 {
		return wrapErr("UI_DEV_DESTROY", errno)
	}
	return closeErr
}

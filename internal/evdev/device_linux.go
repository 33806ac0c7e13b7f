// Package evdev wraps a /dev/input/eventN character device: opening
// it, taking an exclusive grab, and reading raw input_event structs
// with a blocking-with-timeout read.
package evdev

import (
	"encoding/binary"
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"

	"github.com/daedaluz/fdev/poll"

	"github.com/mikla-tf/janus-remap/internal/core"
)

// rawEventSize is sizeof(struct input_event) on a 64-bit kernel: a
// 16-byte timeval followed by type, code, value.
const rawEventSize = 24

// unmarshalEvent decodes one wire-format input_event, the read-side
// counterpart of internal/uinput's marshalEvent.
func unmarshalEvent(buf []byte) (typ, code uint16, value int32) {
	typ = binary.LittleEndian.Uint16(buf[16:18])
	code = binary.LittleEndian.Uint16(buf[18:20])
	value = int32(binary.LittleEndian.Uint32(buf[20:24]))
	return
}

// Device is one open input device, implementing core.EventSource.
type Device struct {
	path    string
	fd      int
	grabbed bool
	closed  atomic.Bool

	// resyncing is true between a SYN_DROPPED and the SYN_REPORT that
	// confirms the kernel's event queue has caught up; events read in
	// that window are discarded rather than handed to the caller.
	resyncing bool
}

// Open opens path read-only.
func Open(path string) (*Device, error) {
	fd, err := syscall.Open(path, syscall.O_RDONLY|syscall.O_CLOEXEC, 0)
	if err != nil {
		return nil, wrapErr("opening "+path, err)
	}
	return &Device{path: path, fd: fd}, nil
}

// Grab takes an exclusive EVIOCGRAB lock: while held, no other process
// (including the X/Wayland input stack) sees this device's events.
func (d *Device) Grab() error {
	if err := d.ioctlGrab(1); err != nil {
		return wrapErr("grabbing "+d.path, err)
	}
	d.grabbed = true
	return nil
}

// Ungrab releases a prior Grab. Without a prior Grab the kernel
// rejects the request and its error is returned.
func (d *Device) Ungrab() error {
	if err := d.ioctlGrab(0); err != nil {
		return wrapErr("ungrabbing "+d.path, err)
	}
	d.grabbed = false
	return nil
}

func (d *Device) ioctlGrab(arg int32) error {
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(d.fd), eviocgrab, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// CapableKeys returns every EV_KEY code the physical device can
// generate, read via EVIOCGBIT. uinput.Create uses this to clone the
// capability set of the virtual device it builds.
func (d *Device) CapableKeys() ([]uint16, error) {
	nbytes := (keyMax / 8) + 1
	bitmap := make([]byte, nbytes)
	req := eviocgbit(evKey, uintptr(nbytes))
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(d.fd), req, uintptr(unsafe.Pointer(&bitmap[0])))
	if errno != 0 {
		return nil, wrapErr("reading EV_KEY capability bitmap", errno)
	}

	var keys []uint16
	for code := 0; code <= keyMax; code++ {
		byteIdx, bit := code/8, uint(code%8)
		if bitmap[byteIdx]&(1<<bit) != 0 {
			keys = append(keys, uint16(code))
		}
	}
	return keys, nil
}

// ReadEvent blocks (with no timeout) for exactly one raw kernel event,
// including EV_SYN housekeeping events. Most callers want Next
// instead, which filters those out and applies timeout semantics.
func (d *Device) ReadEvent() (core.Event, uint16, error) {
	if d.closed.Load() {
		return core.Event{}, 0, syscall.EBADF
	}
	buf := make([]byte, rawEventSize)
	n, err := syscall.Read(d.fd, buf)
	if err != nil {
		return core.Event{}, 0, err
	}
	if n != rawEventSize {
		return core.Event{}, 0, wrapErr("short read from "+d.path, syscall.EIO)
	}
	typ, code, value := unmarshalEvent(buf)
	return core.Event{Code: code, Value: value}, typ, nil
}

// Next implements core.EventSource. It waits up to timeout (timeout<0
// means indefinitely) for readiness, then reads and classifies one
// kernel event at a time until it has an EV_KEY edge to return; after
// each skipped event it waits again with the full timeout, and it
// returns ok=false once such a wait expires with nothing ready. A
// read that would block or was interrupted also goes back to waiting.
//
// SYN_DROPPED handling: the kernel reports a dropped-events condition
// with EV_SYN/SYN_DROPPED when its internal queue overflowed. From
// that point Next discards every event (including further EV_KEY
// edges, which may now be inconsistent with the Engine's row state)
// until the matching EV_SYN/SYN_REPORT confirms the queue has caught
// up, then resumes normal delivery. This mirrors libevdev's
// LIBEVDEV_READ_FLAG_SYNC drain loop.
func (d *Device) Next(timeout time.Duration) (core.Event, bool, error) {
	for {
		if err := poll.WaitInput(d.fd, timeout); err != nil {
			if isTimeout(err) {
				return core.Event{}, false, nil
			}
			return core.Event{}, false, wrapErr("waiting on "+d.path, err)
		}

		ev, typ, err := d.ReadEvent()
		if err == syscall.EAGAIN || err == syscall.EINTR {
			continue
		}
		if err != nil {
			return core.Event{}, false, wrapErr("reading "+d.path, err)
		}

		switch typ {
		case evSyn:
			if ev.Code == synDropped {
				d.resyncing = true
				continue
			}
			if ev.Code == synReport && d.resyncing {
				d.resyncing = false
			}
			continue
		case evKey:
			if d.resyncing {
				continue
			}
			return ev, true, nil
		default:
			continue
		}
	}
}

// isTimeout reports whether err is a plain wait-expired condition
// rather than a real I/O failure, using the standard net.Error-style
// Timeout() bool contract poll libraries implement for this.
func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	te, ok := err.(timeouter)
	return ok && te.Timeout()
}

// Close releases the grab (if held) and closes the underlying fd.
func (d *Device) Close() error {
	if d.closed.Swap(true) {
		return syscall.EBADF
	}
	if d.grabbed {
		_ = d.Ungrab()
	}
	return syscall.Close(d.fd)
}


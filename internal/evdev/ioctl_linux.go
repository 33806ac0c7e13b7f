package evdev

import (
	"unsafe"

	ioctl "github.com/daedaluz/goioctl"
)

// Linux input-event-codes.h / input.h constants relevant to a
// keyboard-only mod-map remapper.
const (
	evSyn = 0x00
	evKey = 0x01

	synReport  = 0
	synDropped = 3

	keyMax = 0x2ff
)

var (
	// EVIOCGRAB(int) — exclusive-grab toggle, arg 1 grabs, 0 releases.
	eviocgrab = ioctl.IOW('E', 0x90, unsafe.Sizeof(int32(0)))

	// EVIOCGBIT(EV_KEY, len) — read the EV_KEY capability bitmap.
	// len depends on the requested bit count, so this is built per
	// call in CapableKeys rather than as a fixed package var.
)

func eviocgbit(ev, length uintptr) uintptr {
	return ioctl.IOR('E', 0x20+byte(ev), length)
}

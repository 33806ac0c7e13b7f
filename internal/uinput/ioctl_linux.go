package uinput

import (
	"unsafe"

	ioctl "github.com/daedaluz/goioctl"
)

const uinputMaxNameSize = 80

// inputID mirrors struct input_id from linux/input.h.
type inputID struct {
	BusType uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

// uinputSetup mirrors struct uinput_setup from linux/uinput.h.
type uinputSetup struct {
	ID           inputID
	Name         [uinputMaxNameSize]byte
	FFEffectsMax uint32
}

var (
	uiSetEvbit   = ioctl.IOW('U', 100, unsafe.Sizeof(int32(0)))
	uiSetKeybit  = ioctl.IOW('U', 101, unsafe.Sizeof(int32(0)))
	uiDevCreate  = ioctl.IO('U', 1)
	uiDevDestroy = ioctl.IO('U', 2)
	uiDevSetup   = ioctl.IOW('U', 3, unsafe.Sizeof(uinputSetup{}))
)

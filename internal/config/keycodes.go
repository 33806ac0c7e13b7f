package config

// Linux input-event-codes.h keycodes used by the symbolic names a
// mod-map YAML file is allowed to reference. Only the subset relevant
// to dual-role remapping is named here; anything else can still be
// given numerically.
const (
	keyEsc         = 1
	keyTab         = 15
	keyEnter       = 28
	keyLeftCtrl    = 29
	keySpace       = 57
	keyCapsLock    = 58
	keyLeftShift   = 42
	keyRightShift  = 54
	keyLeftAlt     = 56
	keyRightCtrl   = 97
	keyRightAlt    = 100
	keyLeftMeta    = 125
	keyRightMeta   = 126
	keyBackspace   = 14
)

var namedKeys = map[string]uint16{
	"ESC":         keyEsc,
	"TAB":         keyTab,
	"ENTER":       keyEnter,
	"LEFTCTRL":    keyLeftCtrl,
	"SPACE":       keySpace,
	"CAPSLOCK":    keyCapsLock,
	"LEFTSHIFT":   keyLeftShift,
	"RIGHTSHIFT":  keyRightShift,
	"LEFTALT":     keyLeftAlt,
	"RIGHTCTRL":   keyRightCtrl,
	"RIGHTALT":    keyRightAlt,
	"LEFTMETA":    keyLeftMeta,
	"RIGHTMETA":   keyRightMeta,
	"BACKSPACE":   keyBackspace,
}

// Package config builds the mod-map table and max_delay_ms value the
// core engine needs, loading them from an optional YAML file via
// viper and falling back to the canonical CapsLock example otherwise.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mikla-tf/janus-remap/internal/core"
	"github.com/spf13/viper"
)

// Row is the file/wire shape of one mod-map entry: symbolic or
// numeric key names, resolved to Linux keycodes by BuildRows.
type Row struct {
	Key       string `mapstructure:"key"`
	Primary   string `mapstructure:"primary"`
	Secondary string `mapstructure:"secondary"`
}

// Config is a mod map, still in symbolic form, plus the deferred-down
// delay.
type Config struct {
	Rows     []Row
	MaxDelay time.Duration
}

// Default returns the canonical example mapping: CapsLock taps
// Escape, holds Left Alt, with a 300ms deferred-down.
func Default() Config {
	return Config{
		Rows: []Row{
			{Key: "CAPSLOCK", Primary: "ESC", Secondary: "LEFTALT"},
		},
		MaxDelay: 300 * time.Millisecond,
	}
}

// Load reads path (a YAML file shaped like:
//
//	max_delay_ms: 300
//	rows:
//	  - key: CAPSLOCK
//	    primary: ESC
//	    secondary: LEFTALT
//
// via viper. An empty path returns Default().
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("max_delay_ms", 300)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, wrapErr("reading config file "+path, err)
	}

	var rows []Row
	if err := v.UnmarshalKey("rows", &rows); err != nil {
		return Config{}, wrapErr("parsing rows", err)
	}
	if len(rows) == 0 {
		return Config{}, Error{msg: "config file " + path + " defines no rows"}
	}

	return Config{
		Rows:     rows,
		MaxDelay: time.Duration(v.GetInt("max_delay_ms")) * time.Millisecond,
	}, nil
}

// resolveKey turns a symbolic name ("CAPSLOCK") or a decimal keycode
// string ("58") into a Linux keycode. An empty name resolves to 0,
// matching the config table's "0 means use the key/default" sentinel.
func resolveKey(name string) (uint16, error) {
	if name == "" {
		return 0, nil
	}
	upper := strings.ToUpper(strings.TrimSpace(name))
	if code, ok := namedKeys[upper]; ok {
		return code, nil
	}
	n, err := strconv.ParseUint(name, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("unknown key name %q", name)
	}
	return uint16(n), nil
}

// BuildRows resolves every Row's symbolic names to keycodes and
// produces the []core.ModKey the engine is constructed from.
// Validate should be called on the result before trusting this for
// anything beyond a preview.
func BuildRows(cfg Config) ([]core.ModKey, error) {
	rows := make([]core.ModKey, 0, len(cfg.Rows))
	for i, r := range cfg.Rows {
		key, err := resolveKey(r.Key)
		if err != nil {
			return nil, wrapErr(fmt.Sprintf("row %d key", i), err)
		}
		if key == 0 {
			return nil, Error{msg: fmt.Sprintf("row %d: key is required", i)}
		}
		primary, err := resolveKey(r.Primary)
		if err != nil {
			return nil, wrapErr(fmt.Sprintf("row %d primary", i), err)
		}
		secondary, err := resolveKey(r.Secondary)
		if err != nil {
			return nil, wrapErr(fmt.Sprintf("row %d secondary", i), err)
		}
		rows = append(rows, core.ModKey{Key: key, Primary: primary, Secondary: secondary})
	}
	return rows, nil
}

// Validate rejects two configuration errors: two rows matching the
// same source key, and a row whose secondary function equals its own
// key — a dual-role key can't hold-produce the very edge a downstream
// consumer would use to tell it apart from passthrough.
func Validate(rows []core.ModKey) error {
	seen := make(map[uint16]bool, len(rows))
	for _, r := range rows {
		if seen[r.Key] {
			return Error{msg: fmt.Sprintf("duplicate key %d in mod map", r.Key)}
		}
		seen[r.Key] = true
		if r.Secondary != 0 && r.Secondary == r.Key {
			return Error{msg: fmt.Sprintf("row for key %d: secondary function cannot equal the key itself", r.Key)}
		}
	}
	return nil
}

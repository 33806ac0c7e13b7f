// Command janus-remap grabs a physical keyboard and remaps selected
// keys to a tap/hold dual role on a synthetic uinput device.
package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/mikla-tf/janus-remap/internal/config"
	"github.com/mikla-tf/janus-remap/internal/core"
	"github.com/mikla-tf/janus-remap/internal/evdev"
	"github.com/mikla-tf/janus-remap/internal/uinput"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		maxDelayMS int
		grabDelay  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "janus-remap <device>",
		Short: "Give keys a tap/hold dual role by remapping a /dev/input device onto a virtual one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0], configPath, maxDelayMS, grabDelay)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to a mod-map YAML file (default: built-in CapsLock example)")
	cmd.Flags().IntVar(&maxDelayMS, "max-delay", 0, "override the configured max_delay_ms (0: use config value)")
	cmd.Flags().DurationVar(&grabDelay, "grab-delay", 100*time.Millisecond, "delay before grabbing the device, letting release events from the launching shortcut clear first")

	return cmd
}

func run(parentCtx context.Context, devicePath, configPath string, maxDelayOverrideMS int, grabDelay time.Duration) error {
	logger := log.New(os.Stderr)

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("loading config", "err", err)
		return err
	}
	if maxDelayOverrideMS > 0 {
		cfg.MaxDelay = time.Duration(maxDelayOverrideMS) * time.Millisecond
	}

	rows, err := config.BuildRows(cfg)
	if err != nil {
		logger.Error("resolving mod map", "err", err)
		return err
	}
	if err := config.Validate(rows); err != nil {
		logger.Error("validating mod map", "err", err)
		return err
	}

	in, err := evdev.Open(devicePath)
	if err != nil {
		logger.Error("opening input device", "path", devicePath, "err", err)
		return err
	}
	defer in.Close()
	logger.Info("opened input device", "path", devicePath)

	extra := extraCodes(rows)
	out, err := uinput.Create(in, "janus-remap", extra)
	if err != nil {
		logger.Error("creating virtual device", "err", err)
		return err
	}
	defer out.Close()
	logger.Info("created virtual device", "rows", len(rows))

	time.Sleep(grabDelay)
	if err := in.Grab(); err != nil {
		logger.Error("grabbing input device", "err", err)
		return err
	}
	logger.Info("grabbed input device, remapping active")

	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt)
	defer stop()

	engine, err := core.New(rows, cfg.MaxDelay, out)
	if err != nil {
		logger.Error("constructing engine", "err", err)
		return err
	}

	if err := engine.Run(ctx, in); err != nil {
		logger.Error("run loop exited", "err", err)
		return err
	}
	logger.Info("input exhausted, exiting cleanly")
	return nil
}

// extraCodes collects every key, primary and secondary code named in
// the mod map (zero skipped, duplicates removed), so the virtual
// device can emit codes the keyboard itself never generates.
func extraCodes(rows []core.ModKey) []uint16 {
	seen := make(map[uint16]bool)
	var codes []uint16
	add := func(code uint16) {
		if code == 0 || seen[code] {
			return
		}
		seen[code] = true
		codes = append(codes, code)
	}
	for _, r := range rows {
		add(r.Key)
		add(r.Primary)
		add(r.Secondary)
	}
	return codes
}

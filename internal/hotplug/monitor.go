// Package hotplug watches for storage devices being attached and re-mirrors a
// returning device from one of its peers.
package hotplug

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"mirrorstore/internal/config"
	"mirrorstore/internal/fsops"
	"mirrorstore/internal/registry"
)

// Monitor consumes device-node events one at a time: resolve the node's mount
// point, match it to a registered device, resync that device from a peer.
type Monitor struct {
	reg    *registry.Registry
	src    EventSource
	mounts *MountTable

	retries int
	delay   time.Duration

	// afterResync is called once per attempted resync.
	afterResync func(idx int, err error)
}

func NewMonitor(reg *registry.Registry, src EventSource, cfg config.HotplugConfig) *Monitor {
	m := &Monitor{
		reg:     reg,
		src:     src,
		mounts:  NewMountTable(cfg.MountTable),
		retries: cfg.MountRetries,
		delay:   cfg.MountRetryDelay,
	}
	if m.retries < 1 {
		m.retries = 1
	}
	return m
}

// Run handles events until ctx is done or the source is exhausted. The source
// is closed on return.
func (m *Monitor) Run(ctx context.Context) error {
	defer m.src.Close()
	log.Info().Str("mount_table", m.mounts.Path()).Int("devices", m.reg.Len()).Msg("hotplug monitor started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case dev, ok := <-m.src.Events():
			if !ok {
				log.Info().Msg("hotplug: event source closed")
				return nil
			}
			m.handle(ctx, dev)
		}
	}
}

func (m *Monitor) handle(ctx context.Context, dev string) {
	mp, err := m.mounts.ResolveMount(ctx, dev, m.retries, m.delay)
	if err != nil {
		log.Debug().Err(err).Str("node", dev).Msg("hotplug: ignoring node")
		return
	}
	idx := m.reg.IndexOfMount(mp)
	if idx < 0 {
		log.Debug().Str("node", dev).Str("mount_point", mp).Msg("hotplug: not a storage device")
		return
	}
	d := m.reg.Device(idx)
	log.Info().Str("node", dev).Str("device", d.Name()).Str("mount_point", mp).Msg("hotplug: storage device attached")

	err = Resync(m.reg, idx, m.mountedFunc())
	if err == nil {
		logUsage(d)
	}
	if m.afterResync != nil {
		m.afterResync(idx, err)
	}
}

// mountedFunc snapshots the mount table for peer selection. If the table
// cannot be read no peer is considered mounted.
func (m *Monitor) mountedFunc() func(registry.Device) bool {
	set, err := m.mounts.MountPoints()
	if err != nil {
		log.Warn().Err(err).Msg("hotplug: reading mount table failed")
	}
	return func(d registry.Device) bool {
		_, ok := set[filepath.Clean(d.MountPoint)]
		return ok
	}
}

func logUsage(d registry.Device) {
	u, err := fsops.DiskUsage(d.Root())
	if err != nil {
		log.Debug().Err(err).Str("device", d.Name()).Msg("disk usage unavailable")
		return
	}
	log.Info().Str("device", d.Name()).Uint64("total_bytes", u.Total).Uint64("free_bytes", u.Free).Msg("device usage")
}

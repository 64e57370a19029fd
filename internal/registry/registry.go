// Package registry holds the fixed, ordered set of storage devices the server
// mirrors onto. A Registry is built once at startup and never mutated; only the
// mounted-ness of each device changes at runtime.
package registry

import (
	"fmt"
	"path/filepath"
	"strings"
)

// MaxDevices bounds the number of configured devices.
const MaxDevices = 16

// Device is one storage target: files live under MountPoint/StorageFolder.
type Device struct {
	Label         string
	MountPoint    string
	StorageFolder string
}

// Root is the absolute directory that holds this device's replica.
func (d Device) Root() string {
	return filepath.Join(d.MountPoint, d.StorageFolder)
}

// Path composes the on-device absolute path for a client-relative path.
// A leading '/' in rel is treated as relative to the device root.
func (d Device) Path(rel string) string {
	rel = strings.TrimLeft(rel, "/")
	if rel == "" {
		return d.Root()
	}
	return filepath.Join(d.Root(), filepath.FromSlash(rel))
}

// Name is a short identifier for logs.
func (d Device) Name() string {
	if d.Label != "" {
		return d.Label
	}
	return d.MountPoint
}

// Registry is an immutable ordered list of devices. The zero value is empty.
type Registry struct {
	devices []Device
}

// New validates and copies devs into a Registry.
func New(devs []Device) (*Registry, error) {
	if len(devs) == 0 {
		return nil, fmt.Errorf("no storage devices configured")
	}
	if len(devs) > MaxDevices {
		return nil, fmt.Errorf("%d storage devices configured, at most %d allowed", len(devs), MaxDevices)
	}
	seen := make(map[string]int, len(devs))
	out := make([]Device, len(devs))
	for i, d := range devs {
		if strings.TrimSpace(d.MountPoint) == "" {
			return nil, fmt.Errorf("device %d: mount point is empty", i)
		}
		mp := filepath.Clean(d.MountPoint)
		if j, dup := seen[mp]; dup {
			return nil, fmt.Errorf("device %d: mount point %q already used by device %d", i, mp, j)
		}
		seen[mp] = i
		out[i] = Device{Label: d.Label, MountPoint: mp, StorageFolder: d.StorageFolder}
	}
	return &Registry{devices: out}, nil
}

// Len is the number of devices.
func (r *Registry) Len() int { return len(r.devices) }

// Device returns the i-th device in registry order.
func (r *Registry) Device(i int) Device { return r.devices[i] }

// Devices returns a copy of the device list.
func (r *Registry) Devices() []Device {
	out := make([]Device, len(r.devices))
	copy(out, r.devices)
	return out
}

// Path is Device(i).Path(rel).
func (r *Registry) Path(i int, rel string) string { return r.devices[i].Path(rel) }

// Root is Device(i).Root().
func (r *Registry) Root(i int) string { return r.devices[i].Root() }

// IndexOfMount returns the index of the device mounted at mountPoint, or -1.
func (r *Registry) IndexOfMount(mountPoint string) int {
	mp := filepath.Clean(mountPoint)
	for i, d := range r.devices {
		if d.MountPoint == mp {
			return i
		}
	}
	return -1
}

// Peer returns the first device other than idx for which mounted reports true,
// or -1 when there is none.
func (r *Registry) Peer(idx int, mounted func(Device) bool) int {
	for i, d := range r.devices {
		if i == idx {
			continue
		}
		if mounted == nil || mounted(d) {
			return i
		}
	}
	return -1
}

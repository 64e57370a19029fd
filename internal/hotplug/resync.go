package hotplug

import (
	"io/fs"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"mirrorstore/internal/fsops"
	"mirrorstore/internal/registry"
)

// ErrNoPeer means no other device was mounted to copy from.
var ErrNoPeer = errors.New("no mounted peer device")

// Resync replaces the contents of device idx with a full copy of the first
// other device (registry order) for which mounted reports true. There is no
// diffing: the destination root is emptied and copied into from scratch, so
// running it twice with the same source leaves the same tree.
//
// Failures are logged and returned together; a failed delete does not stop the
// copy.
func Resync(reg *registry.Registry, idx int, mounted func(registry.Device) bool) error {
	peer := reg.Peer(idx, mounted)
	dst := reg.Device(idx)
	if peer < 0 {
		log.Warn().Str("device", dst.Name()).Msg("resync: no mounted peer, skipping")
		return ErrNoPeer
	}
	src := reg.Device(peer)
	srcRoot, dstRoot := src.Root(), dst.Root()
	logger := log.With().Str("device", dst.Name()).Str("from", src.Name()).Logger()
	logger.Info().Str("src", srcRoot).Str("dst", dstRoot).Msg("resync: start")

	var result *multierror.Error
	if err := fsops.DeleteDir(dstRoot); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Error().Err(err).Msg("resync: clearing destination failed")
		result = multierror.Append(result, errors.Wrap(err, "delete destination"))
	}
	if err := os.MkdirAll(dstRoot, 0o755); err != nil {
		logger.Error().Err(err).Msg("resync: creating destination root failed")
		result = multierror.Append(result, errors.Wrap(err, "create destination"))
		return result.ErrorOrNil()
	}
	if err := fsops.CopyDir(srcRoot, dstRoot); err != nil {
		logger.Error().Err(err).Msg("resync: copy failed")
		result = multierror.Append(result, errors.Wrap(err, "copy"))
	}

	if result.ErrorOrNil() == nil {
		logger.Info().Msg("resync: done")
	}
	return result.ErrorOrNil()
}

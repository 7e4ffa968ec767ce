//go:build !linux && !darwin && !windows

package sysproxy

import "github.com/haukened/rr-filter/internal/filter/common/log"

func newPlatform(logger log.Logger) Configurator {
	logger.Warn(nil, "System proxy configuration is not supported on this platform")
	return Noop{}
}

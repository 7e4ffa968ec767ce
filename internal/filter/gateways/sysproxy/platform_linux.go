package sysproxy

import "github.com/haukened/rr-filter/internal/filter/common/log"

func newPlatform(logger log.Logger) Configurator { return NewGSettings(logger) }

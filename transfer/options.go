package transfer

import (
	"github.com/bitrise-io/go-driveclient/internal"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
)

type options struct {
	osProxy      internal.OsProxy
	pathModifier pathutil.PathModifier
	logger       log.Logger
}

// Option customizes the file system access and logging of transfers.
type Option func(*options)

// WithOsProxy replaces the file system used for sources and destinations.
func WithOsProxy(osProxy internal.OsProxy) Option {
	return func(o *options) {
		o.osProxy = osProxy
	}
}

// WithPathModifier replaces the path modifier used to absolutize download folders.
func WithPathModifier(pathModifier pathutil.PathModifier) Option {
	return func(o *options) {
		o.pathModifier = pathModifier
	}
}

// WithLogger sets the logger used for callback panics and cleanup warnings.
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func newOptions(opts []Option) options {
	o := options{
		osProxy:      internal.RealOS{},
		pathModifier: pathutil.NewPathModifier(),
		logger:       log.NewLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

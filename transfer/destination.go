package transfer

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bitrise-io/go-driveclient/internal"
	"github.com/bitrise-io/go-utils/v2/pathutil"
)

// Resolver turns a folder and a file name into a validated download destination.
type Resolver struct {
	osProxy      internal.OsProxy
	pathModifier pathutil.PathModifier
}

// NewResolver ...
func NewResolver(osProxy internal.OsProxy, pathModifier pathutil.PathModifier) *Resolver {
	return &Resolver{osProxy: osProxy, pathModifier: pathModifier}
}

// ResolveDestination resolves against the real file system.
func ResolveDestination(folder, name string) (string, error) {
	return NewResolver(internal.RealOS{}, pathutil.NewPathModifier()).Resolve(folder, name)
}

// Resolve returns the absolute, cleaned path of name inside folder, creating folder
// and its parents when missing. Every problem is reported as a DestinationError.
func (r *Resolver) Resolve(folder, name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", &DestinationError{Path: name, Err: ErrUnsafeName}
	}
	if strings.TrimSpace(folder) == "" {
		return "", &DestinationError{Path: folder, Err: os.ErrInvalid}
	}

	dir, err := r.pathModifier.AbsPath(folder)
	if err != nil {
		return "", &DestinationError{Path: folder, Err: err}
	}
	dir = filepath.Clean(dir)

	info, err := r.osProxy.Stat(dir)
	switch {
	case err == nil && !info.IsDir():
		return "", &DestinationError{Path: dir, Err: ErrNotDirectory}
	case err != nil && !os.IsNotExist(err):
		return "", &DestinationError{Path: dir, Err: err}
	case err != nil:
		if err := r.osProxy.MkdirAll(dir, 0755); err != nil {
			return "", &DestinationError{Path: dir, Err: err}
		}
	}

	target := filepath.Join(dir, name)
	if info, err := r.osProxy.Stat(target); err == nil && info.IsDir() {
		return "", &DestinationError{Path: target, Err: ErrTargetIsDirectory}
	}
	return target, nil
}

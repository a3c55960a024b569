package purchasing

import "github.com/roach88/kongstore/internal/webapi"

// StoreName is the name the store registers under.
const StoreName = "Kongregate"

// Platform identifies the host runtime.
type Platform string

const (
	PlatformWebGL   Platform = "webgl"
	PlatformDesktop Platform = "desktop"
	PlatformMobile  Platform = "mobile"
)

// Registrar is the purchasing framework's store registry.
type Registrar interface {
	// RegisterStore binds name to store. A nil store marks the store as
	// unavailable on this platform.
	RegisterStore(name string, store *Store)
}

// Configure registers the store with reg.
//
// The web API must have been initialized first; otherwise Configure returns
// a *ConfigureError. The store is only usable in a WebGL host where the API
// is not unavailable; elsewhere StoreName is registered with a nil store and
// Configure returns nil.
func Configure(reg Registrar, api webapi.API, notifier Notifier, platform Platform, opts ...Option) (*Store, error) {
	status := api.Status()
	if status == webapi.StatusUninitialized {
		return nil, &ConfigureError{Code: ErrCodeAPIUninitialized, Status: status}
	}

	if platform != PlatformWebGL || status == webapi.StatusUnavailable {
		reg.RegisterStore(StoreName, nil)
		return nil, nil
	}

	s := New(api, notifier, opts...)
	reg.RegisterStore(StoreName, s)
	return s, nil
}

// Registry is a minimal in-process Registrar.
type Registry map[string]*Store

// RegisterStore implements Registrar.
func (r Registry) RegisterStore(name string, store *Store) {
	r[name] = store
}

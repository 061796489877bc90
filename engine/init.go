// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/gviegas/framepace/driver"
)

// ErrNoDriver means that no registered driver matched
// the name given to OpenDriver or that every match
// failed to open.
var ErrNoDriver = errors.New("engine: driver not found")

// OpenDriver opens the first registered driver whose name
// contains name. It is case insensitive.
// If name is the empty string, then all registered
// drivers are considered.
// The GPU must implement driver.Presenter for it to be
// used with NewOnscreen.
// On failure, the error matches ErrNoDriver and also
// wraps the error of every driver that failed to open.
func OpenDriver(name string) (driver.Driver, driver.GPU, error) {
	drivers := driver.Drivers()
	errs := []error{ErrNoDriver}
	name = strings.ToLower(name)
	for i := range drivers {
		if !strings.Contains(strings.ToLower(drivers[i].Name()), name) {
			continue
		}
		u, err := drivers[i].Open()
		if err != nil {
			errs = append(errs, errors.Wrapf(err, "engine: open %s", drivers[i].Name()))
			continue
		}
		return drivers[i], u, nil
	}
	return nil, nil, errors.Join(errs...)
}

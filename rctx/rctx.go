// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package rctx defines the RenderContext, the single value
// threaded through every manager and render pass in place of
// the package-level driver singletons used elsewhere in the
// wider Go ecosystem's renderer prototypes.
//
// Nothing in this module keeps a global *driver.GPU. Callers
// construct exactly one Context (usually before engine.New, which takes it) and
// pass it, or a value derived from it, to every constructor
// that needs GPU access. This makes it possible to run more
// than one renderer (e.g. in tests, or multiple windows) in
// the same process without data races on shared state.
package rctx

import (
	"errors"
	"strings"

	"github.com/vireoengine/forge/driver"
)

// ErrNoDriver means that no registered driver matched the
// requested name, or that no driver could be opened.
var ErrNoDriver = errors.New("rctx: no matching driver found")

// Context carries the open driver/GPU pair and the device
// limits queried from it. It is immutable after New returns.
type Context struct {
	drv    driver.Driver
	gpu    driver.GPU
	limits driver.Limits
}

// New opens the first registered driver whose name contains
// name and returns a Context wrapping it. If name is the
// empty string, every registered driver is considered, in
// registration order.
func New(name string) (*Context, error) {
	drivers := driver.Drivers()
	err := ErrNoDriver
	for i := range drivers {
		if !strings.Contains(drivers[i].Name(), name) {
			continue
		}
		gpu, e := drivers[i].Open()
		if e != nil {
			err = e
			continue
		}
		return &Context{drv: drivers[i], gpu: gpu, limits: gpu.Limits()}, nil
	}
	return nil, err
}

// Driver returns the underlying driver.Driver.
func (c *Context) Driver() driver.Driver { return c.drv }

// GPU returns the underlying driver.GPU.
func (c *Context) GPU() driver.GPU { return c.gpu }

// Limits returns the device limits queried when the Context
// was created. The returned value must not be modified.
func (c *Context) Limits() *driver.Limits { return &c.limits }

// Close closes the underlying driver. The Context must not be
// used afterwards.
func (c *Context) Close() { c.drv.Close() }

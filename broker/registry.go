package broker

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"accountsd/channel"
)

// ErrUnknownBroker is returned when no broker is registered under a context name.
var ErrUnknownBroker = errors.New("unknown broker")

// Options carries the collaborators a broker variant may use.
type Options struct {
	Channel      channel.Channel
	Logger       *slog.Logger
	Capabilities map[string]bool
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Factory builds a broker variant.
type Factory func(opts Options) Broker

var factories = map[string]Factory{
	WebName:      func(opts Options) Broker { return NewWeb(opts) },
	FennecV1Name: func(opts Options) Broker { return NewFxFennecV1(opts) },
}

// New builds the broker registered under name.
func New(name string, opts Options) (Broker, error) {
	factory, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBroker, name)
	}
	return factory(opts), nil
}

// Known reports whether a broker is registered under name.
func Known(name string) bool {
	_, ok := factories[name]
	return ok
}

// Names returns the registered broker names in sorted order.
func Names() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

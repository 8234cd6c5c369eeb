// Package builtin wires every shipped venue adapter into a registry.
package builtin

import (
	"github.com/arbscan/arbscan/internal/venue"
	"github.com/arbscan/arbscan/internal/venue/binance"
	"github.com/arbscan/arbscan/internal/venue/bybit"
	"github.com/arbscan/arbscan/internal/venue/fake"
	"github.com/arbscan/arbscan/internal/venue/gate"
	"github.com/arbscan/arbscan/internal/venue/mexc"
)

// Register installs all built-in venue factories.
func Register(reg *venue.Registry) error {
	for _, register := range []func(*venue.Registry) error{
		binance.RegisterFactory,
		bybit.RegisterFactory,
		gate.RegisterFactory,
		mexc.RegisterFactory,
		fake.RegisterFactory,
	} {
		if err := register(reg); err != nil {
			return err
		}
	}
	return nil
}

//go:build wireinject

package app

import (
	"context"

	"github.com/google/wire"

	"kestrel/internal/config"
)

func buildAppWithWire(ctx context.Context, cfg *config.Config) (*App, error) {
	wire.Build(
		provideBuilder,
		wire.Bind(new(appAssembler), new(*Builder)),
		provideAppFromBuilder,
	)
	return nil, nil
}

type appAssembler interface {
	Build(context.Context) (*App, error)
}

func provideAppFromBuilder(b appAssembler, ctx context.Context) (*App, error) {
	return b.Build(ctx)
}

func provideBuilder(cfg *config.Config) *Builder {
	return NewBuilder(cfg)
}

package flow

import (
	"github.com/adsightlabs/adconnect/internal/config"
	"go.uber.org/fx"
)

// Module provides the flow dependencies
var Module = fx.Options(
	fx.Provide(
		NewConnector,
		fx.Annotate(
			func(cfg *config.FlowConfig) *BrowserLauncher {
				return &BrowserLauncher{Command: cfg.Browser}
			},
			fx.As(new(Launcher)),
		),
	),
)

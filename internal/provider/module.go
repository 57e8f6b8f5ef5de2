package provider

import "go.uber.org/fx"

// Module provides the provider registry
var Module = fx.Module("provider",
	fx.Provide(NewRegistry),
)

package backend

import (
	"go.uber.org/fx"
)

// Module provides the backend client dependencies
var Module = fx.Options(
	fx.Provide(
		NewClient,
	),
)

package tokens

import "go.uber.org/fx"

// Module provides the token store
var Module = fx.Module("tokens",
	fx.Provide(NewStore),
)

package accounts

import "go.uber.org/fx"

// Module provides the account enumerator
var Module = fx.Module("accounts",
	fx.Provide(NewEnumerator),
)

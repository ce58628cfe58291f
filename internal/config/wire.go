package config

import "github.com/google/wire"

// ProviderSet is this package's dependency injection set: Load takes the
// --config flag value (or "" for the default search path) and returns
// the fully-defaulted Config.
var ProviderSet = wire.NewSet(Load)

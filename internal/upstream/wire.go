package upstream

import (
	"github.com/google/wire"

	"github.com/routerforge/acctrouter/internal/config"
	"github.com/routerforge/acctrouter/internal/worker"
)

// ProviderSet is this package's dependency injection set.
var ProviderSet = wire.NewSet(
	ProvideTransportPool,
	NewClient,
	ProvideAccountClient,
	ProvideUpstreamCaller,
)

// ProvideTransportPool builds the transport pool from DonorConfig.
func ProvideTransportPool(cfg *config.Config) *TransportPool {
	return NewTransportPool(cfg.Donor)
}

// ProvideAccountClient builds the account-aware client from DonorConfig.
func ProvideAccountClient(client *Client, cfg *config.Config) *AccountClient {
	return NewAccountClient(client, cfg.Donor)
}

// ProvideUpstreamCaller narrows *AccountClient to the interface the
// worker package actually depends on, keeping the manager/worker wiring
// free of a direct *upstream import.
func ProvideUpstreamCaller(client *AccountClient) worker.UpstreamCaller {
	return client
}

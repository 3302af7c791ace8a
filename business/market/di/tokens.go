// Package di contains dependency injection tokens for the market context.
package di

import (
	"github.com/fd1az/cfmm-arbitrage/business/market/app"
	"github.com/fd1az/cfmm-arbitrage/internal/di"
)

// Public service tokens - exposed to other modules
var (
	MarketService = di.NewToken[*app.MarketService]("market.MarketService")
)

// Private dependency tokens - internal to market module
var (
	MarketsFeed      = di.NewToken[app.MarketsFeed]("market:marketsFeed")
	MarketDataSource = di.NewToken[app.MarketDataSource]("market:marketDataSource")
)

func GetMarketService(c di.ServiceRegistry) *app.MarketService {
	return di.GetToken(c, MarketService)
}

func GetMarketsFeed(c di.ServiceRegistry) app.MarketsFeed {
	return di.GetToken(c, MarketsFeed)
}

func GetMarketDataSource(c di.ServiceRegistry) app.MarketDataSource {
	return di.GetToken(c, MarketDataSource)
}

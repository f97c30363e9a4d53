package mocks

//go:generate mockgen -destination=./mock_fetcher.go -package=mocks github.com/rickgao/stock-data/internal/scheduler Fetcher
//go:generate mockgen -destination=./mock_gateway.go -package=mocks github.com/rickgao/stock-data/internal/store Gateway

package mocks

//go:generate mockgen -destination=./mock_fetcher.go -package=mocks StockWatch/internal/collector SeriesFetcher
//go:generate mockgen -destination=./mock_store.go -package=mocks StockWatch/internal/store Store

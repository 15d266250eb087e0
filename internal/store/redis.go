package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"StockWatch/internal/errors"
	"StockWatch/internal/model"

	goredis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	redisKeyPrefix   = "stockwatch:series:"
	redisFieldSeries = "series"
	redisFieldRecord = "record"
	redisMaxAttempts = 3
)

// RedisStore keeps each symbol in one hash holding the series and pull record.
type RedisStore struct {
	client *goredis.Client
	log    *zap.Logger
}

// NewRedisStore connects and pings the server.
func NewRedisStore(ctx context.Context, addr, password string, db int, log *zap.Logger) (*RedisStore, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Info("redis store connected", zap.String("addr", addr), zap.Int("db", db))
	return &RedisStore{client: client, log: log}, nil
}

func redisKey(symbol string) string { return redisKeyPrefix + symbol }

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, symbol string) (model.PriceSeries, model.PullRecord, error) {
	fields, err := s.client.HGetAll(ctx, redisKey(symbol)).Result()
	if err != nil {
		return model.PriceSeries{}, model.PullRecord{}, storageErr(symbol, err, "hgetall")
	}
	return decodeRedisHash(symbol, fields)
}

func decodeRedisHash(symbol string, fields map[string]string) (model.PriceSeries, model.PullRecord, error) {
	rawRecord, ok := fields[redisFieldRecord]
	if !ok {
		return model.PriceSeries{}, model.PullRecord{}, notFound(symbol)
	}
	var rec model.PullRecord
	if err := json.Unmarshal([]byte(rawRecord), &rec); err != nil {
		return model.PriceSeries{}, model.PullRecord{}, storageErr(symbol, err, "decode pull record")
	}
	series := model.PriceSeries{Symbol: symbol}
	if raw := fields[redisFieldSeries]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &series.Points); err != nil {
			return model.PriceSeries{}, model.PullRecord{}, storageErr(symbol, err, "decode series")
		}
	}
	rec.Symbol = symbol
	return series, rec, nil
}

// Save implements Store. The pull date check and the HSET run under WATCH,
// so a concurrent writer on the same key aborts and retries.
func (s *RedisStore) Save(ctx context.Context, symbol string, series model.PriceSeries, snapshot model.IndicatorSnapshot, pullDate time.Time) error {
	if err := checkSeries(symbol, series); err != nil {
		return err
	}
	points := make([]model.PricePoint, len(series.Points))
	for i, p := range series.Points {
		points[i] = model.PricePoint{Date: model.DateOf(p.Date), Close: p.Close}
	}
	rawSeries, err := json.Marshal(points)
	if err != nil {
		return storageErr(symbol, err, "encode series")
	}
	rawRecord, err := json.Marshal(model.PullRecord{
		Symbol:       symbol,
		LastPullDate: pullDate.UTC(),
		Snapshot:     snapshotOrEmpty(snapshot),
	})
	if err != nil {
		return storageErr(symbol, err, "encode pull record")
	}

	key := redisKey(symbol)
	txf := func(tx *goredis.Tx) error {
		raw, err := tx.HGet(ctx, key, redisFieldRecord).Result()
		switch {
		case err == goredis.Nil:
		case err != nil:
			return storageErr(symbol, err, "hget")
		default:
			var prev model.PullRecord
			if err := json.Unmarshal([]byte(raw), &prev); err != nil {
				return storageErr(symbol, err, "decode pull record")
			}
			if err := checkMonotonic(symbol, prev.LastPullDate, pullDate); err != nil {
				return err
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.HSet(ctx, key, redisFieldSeries, string(rawSeries), redisFieldRecord, string(rawRecord))
			return nil
		})
		return err
	}

	for attempt := 0; attempt < redisMaxAttempts; attempt++ {
		err = s.client.Watch(ctx, txf, key)
		if err != goredis.TxFailedErr {
			break
		}
	}
	if err != nil {
		if errors.KindOf(err) == errors.KindUnknown {
			return storageErr(symbol, err, "hset")
		}
		return err
	}
	s.log.Debug("series saved", zap.String("symbol", symbol), zap.Int("points", series.Len()))
	return nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

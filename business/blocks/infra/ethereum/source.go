// Package ethereum provides go-ethereum backed adapters for the blocks
// context: the JSON-RPC block source, the newHeads subscriber, the L1 origin
// resolver and the cached L1 block reader.
package ethereum

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/blockviz/business/blocks/app"
	"github.com/fd1az/blockviz/business/blocks/domain"
	"github.com/fd1az/blockviz/internal/apperror"
	"github.com/fd1az/blockviz/internal/circuitbreaker"
	"github.com/fd1az/blockviz/internal/logger"
)

const (
	tracerName = "github.com/fd1az/blockviz/business/blocks/infra/ethereum"
	meterName  = "github.com/fd1az/blockviz/business/blocks/infra/ethereum"

	// JSON-RPC "limit exceeded" as returned by most hosted providers.
	rpcCodeLimitExceeded = -32005
)

var _ app.BlockSource = (*Source)(nil)

// SourceConfig holds configuration for the block source.
type SourceConfig struct {
	Name           string        // breaker and log name, e.g. "l2" or "l1"
	RequestTimeout time.Duration // per call, including retries
	MaxRetries     uint64        // retries of transient failures
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultSourceConfig returns sensible defaults.
func DefaultSourceConfig(name string) SourceConfig {
	return SourceConfig{
		Name:           name,
		RequestTimeout: 10 * time.Second,
		MaxRetries:     3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
	}
}

type sourceMetrics struct {
	calls   metric.Int64Counter
	errors  metric.Int64Counter
	latency metric.Float64Histogram
}

// Source implements app.BlockSource over a JSON-RPC endpoint.
type Source struct {
	config SourceConfig
	client *ethclient.Client
	logger logger.LoggerInterface

	cb *circuitbreaker.CircuitBreaker[any]

	tracer  trace.Tracer
	metrics *sourceMetrics
}

// NewSource creates a block source over client.
func NewSource(client *ethclient.Client, cfg SourceConfig, log logger.LoggerInterface) (*Source, error) {
	if client == nil {
		return nil, apperror.New(apperror.CodeConfigurationError, apperror.WithContext("nil rpc client"))
	}
	if cfg.Name == "" {
		cfg.Name = "rpc"
	}

	s := &Source{
		config: cfg,
		client: client,
		logger: log,
		tracer: otel.Tracer(tracerName),
	}

	if err := s.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	cbCfg := circuitbreaker.DefaultConfig(cfg.Name + "-rpc")
	cbCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		s.logger.Info(context.Background(), "circuit breaker state change",
			"breaker", name, "from", from.String(), "to", to.String())
	}
	// Missing blocks and rate limiting do not count against the endpoint.
	cbCfg.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, geth.NotFound) || isRateLimited(err)
	}
	s.cb = circuitbreaker.New[any](cbCfg)

	return s, nil
}

func (s *Source) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	s.metrics = &sourceMetrics{}

	s.metrics.calls, err = meter.Int64Counter(
		"blockviz_rpc_requests_total",
		metric.WithDescription("JSON-RPC calls issued by the block source"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return err
	}

	s.metrics.errors, err = meter.Int64Counter(
		"blockviz_rpc_errors_total",
		metric.WithDescription("JSON-RPC calls that failed after retries"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	s.metrics.latency, err = meter.Float64Histogram(
		"blockviz_rpc_latency_ms",
		metric.WithDescription("JSON-RPC call latency including retries"),
		metric.WithUnit("ms"),
	)
	return err
}

// HeadNumber returns the current head number (eth_blockNumber).
func (s *Source) HeadNumber(ctx context.Context) (uint64, error) {
	ctx, span := s.tracer.Start(ctx, "eth.head_number",
		trace.WithAttributes(attribute.String("source", s.config.Name)))
	defer span.End()

	n, err := call(ctx, s, "eth_blockNumber", func(ctx context.Context) (uint64, error) {
		return s.client.BlockNumber(ctx)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "head number failed")
		return 0, err
	}
	span.SetAttributes(attribute.Int64("block_number", int64(n)))
	span.SetStatus(codes.Ok, "fetched")
	return n, nil
}

// BlockByNumber fetches a block without transaction bodies
// (eth_getBlockByNumber, false). A null result is CodeBlockNotFound.
func (s *Source) BlockByNumber(ctx context.Context, number uint64) (*domain.Block, error) {
	ctx, span := s.tracer.Start(ctx, "eth.block_by_number",
		trace.WithAttributes(
			attribute.String("source", s.config.Name),
			attribute.Int64("block_number", int64(number)),
		),
	)
	defer span.End()

	raw, err := call(ctx, s, "eth_getBlockByNumber", func(ctx context.Context) (*rpcBlock, error) {
		var b *rpcBlock
		err := s.client.Client().CallContext(ctx, &b, "eth_getBlockByNumber", hexutil.EncodeUint64(number), false)
		if err == nil && b == nil {
			return nil, geth.NotFound
		}
		return b, err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		if !apperror.IsCode(err, apperror.CodeBlockNotFound) {
			s.logger.Warn(ctx, "block fetch failed", "source", s.config.Name, "block", number, "error", err)
		}
		return nil, err
	}

	block, err := raw.toDomain()
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetStatus(codes.Ok, "fetched")
	return block, nil
}

// call runs fn through the breaker with retries on transient failures and
// returns errors classified into app codes.
func call[T any](ctx context.Context, s *Source, method string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if s.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RequestTimeout)
		defer cancel()
	}

	start := time.Now()
	attrs := metric.WithAttributes(
		attribute.String("source", s.config.Name),
		attribute.String("method", method),
	)

	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(s.config.InitialBackoff),
		backoff.WithMaxInterval(s.config.MaxBackoff),
		backoff.WithMaxElapsedTime(0),
	)

	var result T
	op := func() error {
		s.metrics.calls.Add(ctx, 1, attrs)
		res, err := s.cb.Execute(func() (any, error) {
			return fn(ctx)
		})
		if err != nil {
			classified := classify(err, method)
			if !retryable(classified) {
				return backoff.Permanent(classified)
			}
			return classified
		}
		result = res.(T)
		return nil
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, s.config.MaxRetries), ctx))
	s.metrics.latency.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
	if err != nil {
		if !apperror.IsAppError(err) {
			// context expiry surfaced by the backoff wrapper
			err = classify(err, method)
		}
		s.metrics.errors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("source", s.config.Name),
			attribute.String("method", method),
			attribute.String("code", string(apperror.GetCode(err))),
		))
		return zero, err
	}
	return result, nil
}

// classify maps a transport or JSON-RPC error to the app error taxonomy.
func classify(err error, method string) error {
	if apperror.IsAppError(err) {
		return err
	}
	switch {
	case errors.Is(err, geth.NotFound):
		return apperror.New(apperror.CodeBlockNotFound, apperror.WithCause(err), apperror.WithContext(method))
	case isRateLimited(err):
		return apperror.New(apperror.CodeRateLimitExceeded, apperror.WithCause(err), apperror.WithContext(method))
	default:
		return apperror.New(apperror.CodeUpstreamTransient, apperror.WithCause(err), apperror.WithContext(method))
	}
}

func isRateLimited(err error) bool {
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusTooManyRequests {
		return true
	}
	var rpcErr rpc.Error
	return errors.As(err, &rpcErr) && rpcErr.ErrorCode() == rpcCodeLimitExceeded
}

func retryable(err error) bool {
	return apperror.IsCode(err, apperror.CodeUpstreamTransient)
}

// rpcBlock is the subset of an eth_getBlockByNumber / newHeads payload the
// viewer needs. Transactions is absent on newHeads notifications.
type rpcBlock struct {
	Number        *hexutil.Big      `json:"number"`
	Hash          *common.Hash      `json:"hash"`
	ParentHash    common.Hash       `json:"parentHash"`
	Timestamp     hexutil.Uint64    `json:"timestamp"`
	GasUsed       *hexutil.Big      `json:"gasUsed"`
	GasLimit      *hexutil.Big      `json:"gasLimit"`
	BaseFeePerGas *hexutil.Big      `json:"baseFeePerGas"`
	Transactions  []json.RawMessage `json:"transactions"`
}

func (b *rpcBlock) toDomain() (*domain.Block, error) {
	if b.Number == nil {
		return nil, apperror.New(apperror.CodeInvalidBlock, apperror.WithContext("block without number"))
	}
	n := b.Number.ToInt()
	if n.Sign() < 0 || !n.IsUint64() {
		return nil, apperror.New(apperror.CodeInvalidBlock,
			apperror.WithContext(fmt.Sprintf("block number %s out of range", n.String())))
	}

	block := &domain.Block{
		Number:        n.Uint64(),
		ParentHash:    b.ParentHash,
		TimestampMs:   uint64(b.Timestamp) * 1000,
		GasUsed:       b.GasUsed.ToInt(),
		GasLimit:      b.GasLimit.ToInt(),
		BaseFeePerGas: b.BaseFeePerGas.ToInt(),
		TxCount:       uint64(len(b.Transactions)),
	}
	if b.Hash != nil {
		block.Hash = *b.Hash
	}
	return block, nil
}

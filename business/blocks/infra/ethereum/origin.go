package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/fd1az/blockviz/business/blocks/app"
	"github.com/fd1az/blockviz/business/blocks/domain"
	"github.com/fd1az/blockviz/internal/apperror"
	"github.com/fd1az/blockviz/internal/circuitbreaker"
	"github.com/fd1az/blockviz/internal/logger"
)

var _ app.OriginResolver = (*OriginResolver)(nil)

// OriginResolver reads the L1Block predeploy at a given L2 block to find the
// L1 block that L2 block was derived from.
type OriginResolver struct {
	client  *ethclient.Client
	address common.Address
	abi     abi.ABI
	logger  logger.LoggerInterface

	cb     *circuitbreaker.CircuitBreaker[[]byte]
	tracer trace.Tracer
}

// NewOriginResolver creates a resolver calling the predeploy through client.
func NewOriginResolver(client *ethclient.Client, log logger.LoggerInterface) (*OriginResolver, error) {
	parsed, err := abi.JSON(strings.NewReader(L1BlockABI))
	if err != nil {
		return nil, fmt.Errorf("parse L1Block ABI: %w", err)
	}

	r := &OriginResolver{
		client:  client,
		address: L1BlockAddress,
		abi:     parsed,
		logger:  log,
		tracer:  otel.Tracer(tracerName),
	}

	cbCfg := circuitbreaker.DefaultConfig("l1block-predeploy")
	cbCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		r.logger.Info(context.Background(), "circuit breaker state change",
			"breaker", name, "from", from.String(), "to", to.String())
	}
	r.cb = circuitbreaker.New[[]byte](cbCfg)

	return r, nil
}

// OriginOf returns the L1 origin of L2 block l2Number. The three getters
// are read concurrently at the same block.
func (r *OriginResolver) OriginOf(ctx context.Context, l2Number uint64) (domain.L1Origin, error) {
	ctx, span := r.tracer.Start(ctx, "eth.l1_origin",
		trace.WithAttributes(attribute.Int64("block_number", int64(l2Number))))
	defer span.End()

	var (
		number    uint64
		hash      [32]byte
		timestamp uint64
	)
	at := new(big.Int).SetUint64(l2Number)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.read(gctx, "number", at, &number) })
	g.Go(func() error { return r.read(gctx, "hash", at, &hash) })
	g.Go(func() error { return r.read(gctx, "timestamp", at, &timestamp) })
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "origin lookup failed")
		return domain.L1Origin{}, err
	}

	span.SetAttributes(attribute.Int64("l1_number", int64(number)))
	span.SetStatus(codes.Ok, "resolved")
	return domain.L1Origin{
		Number:      number,
		Hash:        common.Hash(hash),
		TimestampMs: timestamp * 1000,
	}, nil
}

func (r *OriginResolver) read(ctx context.Context, method string, at *big.Int, out any) error {
	data, err := r.abi.Pack(method)
	if err != nil {
		return apperror.New(apperror.CodeContractCallFailed, apperror.WithCause(err), apperror.WithContext(method))
	}

	result, err := r.cb.Execute(func() ([]byte, error) {
		return r.client.CallContract(ctx, geth.CallMsg{To: &r.address, Data: data}, at)
	})
	if err != nil {
		if apperror.IsAppError(err) {
			return err
		}
		return apperror.New(apperror.CodeContractCallFailed, apperror.WithCause(err), apperror.WithContext("L1Block."+method))
	}

	if err := r.abi.UnpackIntoInterface(out, method, result); err != nil {
		return apperror.New(apperror.CodeContractCallFailed, apperror.WithCause(err),
			apperror.WithContext("decode L1Block."+method))
	}
	return nil
}

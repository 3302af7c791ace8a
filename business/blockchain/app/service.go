package app

import (
	"context"
	"errors"

	"github.com/fd1az/cfmm-arbitrage/business/blockchain/domain"
)

// BlockchainService is the blockchain context's facade: gas quotes for
// cost estimation and heads for block-triggered scans. The subscriber is
// nil for interval-driven and offline runs.
type BlockchainService struct {
	subscriber BlockSubscriber
	gasOracle  GasOracle
}

func NewBlockchainService(subscriber BlockSubscriber, gasOracle GasOracle) *BlockchainService {
	return &BlockchainService{
		subscriber: subscriber,
		gasOracle:  gasOracle,
	}
}

// SubscribeBlocks returns a nil channel without a subscriber. Receiving
// from it blocks forever, which leaves the caller on its interval trigger.
func (s *BlockchainService) SubscribeBlocks(ctx context.Context) (<-chan *domain.Block, error) {
	if s.subscriber == nil {
		return nil, nil
	}
	return s.subscriber.Subscribe(ctx)
}

func (s *BlockchainService) GasPrice(ctx context.Context) (*domain.GasPrice, error) {
	return s.gasOracle.GasPrice(ctx)
}

// LatestBlockNumber returns the head number, or 0 without a subscriber.
func (s *BlockchainService) LatestBlockNumber(ctx context.Context) (uint64, error) {
	if s.subscriber == nil {
		return 0, nil
	}
	b, err := s.subscriber.LatestBlock(ctx)
	if err != nil {
		return 0, err
	}
	return b.Number, nil
}

func (s *BlockchainService) ConnectionState() domain.ConnectionState {
	if s.subscriber == nil {
		return domain.StateDisconnected
	}
	return s.subscriber.State()
}

// Close releases the subscriber and the gas oracle.
func (s *BlockchainService) Close() error {
	var errs []error
	if s.subscriber != nil {
		errs = append(errs, s.subscriber.Close())
	}
	if s.gasOracle != nil {
		errs = append(errs, s.gasOracle.Close())
	}
	return errors.Join(errs...)
}

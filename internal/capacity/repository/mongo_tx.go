package repository

import (
	"context"
	"errors"

	"diffatours/pkg/config"
	mongotx "diffatours/pkg/db/mongo"

	"go.mongodb.org/mongo-driver/mongo"
)

var errBatchRejected = errors.New("batch reservation rejected")

// mongoTxCapacityRepository reserves every item of an order inside one
// transaction. It needs a replica set, which is why it is opt-in.
type mongoTxCapacityRepository struct {
	*mongoCapacityRepository
	txManager mongotx.TransactionManager
}

func NewMongoTxCapacityRepository(cfg *config.Config) CapacityRepository {
	return &mongoTxCapacityRepository{
		mongoCapacityRepository: newMongoCapacityRepository(cfg),
		txManager:               mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

func (r *mongoTxCapacityRepository) ReserveAll(ctx context.Context, items []ReserveItem) ([]*ReserveResult, error) {
	var results []*ReserveResult

	err := r.txManager.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		results = make([]*ReserveResult, 0, len(items))
		for _, item := range items {
			res, err := r.Reserve(sessCtx, item)
			if err != nil {
				return err
			}
			results = append(results, res)
			if res.Outcome == OutcomeRejected {
				return errBatchRejected
			}
		}
		return nil
	})

	if errors.Is(err, errBatchRejected) {
		return results, nil
	}
	if err != nil {
		return nil, err
	}
	return results, nil
}

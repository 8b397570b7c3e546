package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/fleamart/api/internal/domain"
	pfirestore "github.com/fleamart/api/internal/platform/firestore"
	"github.com/fleamart/api/internal/repositories"
)

const transactionCollection = "transactions"

// TransactionRepository persists append-only ledger rows within Firestore.
type TransactionRepository struct {
	base     *pfirestore.BaseRepository[transactionDocument]
	provider *pfirestore.Provider
}

// NewTransactionRepository constructs a Firestore-backed ledger repository.
func NewTransactionRepository(provider *pfirestore.Provider) (*TransactionRepository, error) {
	if provider == nil {
		return nil, errors.New("transaction repository requires firestore provider")
	}
	return &TransactionRepository{
		base:     pfirestore.NewBaseRepository[transactionDocument](provider, transactionCollection, nil),
		provider: provider,
	}, nil
}

// Insert creates the ledger row, failing with a conflict when the id already exists.
func (r *TransactionRepository) Insert(ctx context.Context, txn domain.Transaction) error {
	if r == nil || r.base == nil {
		return errors.New("transaction repository not initialised")
	}
	if strings.TrimSpace(txn.ID) == "" {
		return errors.New("transaction repository: transaction id is required")
	}
	_, err := r.base.Create(ctx, txn.ID, encodeTransaction(txn))
	return err
}

// UpdateStatus advances the settlement state of a ledger row. Terminal rows
// reject any further transition; only status and terminal metadata ever
// change, the monetary fields are written once at insert.
func (r *TransactionRepository) UpdateStatus(ctx context.Context, txnID string, status domain.TransactionStatus, update repositories.TransactionStatusUpdate) (domain.Transaction, error) {
	if r == nil || r.base == nil {
		return domain.Transaction{}, errors.New("transaction repository not initialised")
	}

	ref, err := r.base.DocumentRef(ctx, txnID)
	if err != nil {
		return domain.Transaction{}, err
	}

	var updated domain.Transaction
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return pfirestore.WrapError("transactions.updateStatus", err)
		}
		current, err := r.base.Decode(ctx, snap)
		if err != nil {
			return fmt.Errorf("transactions.updateStatus: decode %s: %w", txnID, err)
		}

		if domain.TransactionStatus(current.Data.Status).IsTerminal() {
			return pfirestore.NewConflictError("transactions.updateStatus",
				fmt.Errorf("row already settled as %q", current.Data.Status))
		}

		now := time.Now().UTC()
		doc := current.Data
		doc.Status = string(status)
		doc.UpdatedAt = now
		if ref := strings.TrimSpace(update.GatewayRef); ref != "" {
			doc.GatewayRef = ref
		}
		if code := strings.TrimSpace(update.FailureCode); code != "" {
			doc.FailureCode = code
		}
		if msg := strings.TrimSpace(update.FailureMessage); msg != "" {
			doc.FailureMessage = msg
		}
		if update.CompletedAt != nil {
			completedAt := update.CompletedAt.UTC()
			doc.CompletedAt = &completedAt
		}

		updated = decodeTransaction(current.ID, doc)
		return pfirestore.WrapError("transactions.updateStatus", tx.Set(ref, doc))
	})
	if err != nil {
		return domain.Transaction{}, err
	}
	return updated, nil
}

// FindByID loads the ledger row with the given identifier.
func (r *TransactionRepository) FindByID(ctx context.Context, txnID string) (domain.Transaction, error) {
	if r == nil || r.base == nil {
		return domain.Transaction{}, errors.New("transaction repository not initialised")
	}
	doc, err := r.base.Get(ctx, txnID)
	if err != nil {
		return domain.Transaction{}, err
	}
	return decodeTransaction(doc.ID, doc.Data), nil
}

// FindPayoutForOrder returns the payout row for the order when one exists, in
// any settlement state. Its presence is the payout idempotency guard.
func (r *TransactionRepository) FindPayoutForOrder(ctx context.Context, orderID string) (domain.Transaction, error) {
	if r == nil || r.base == nil {
		return domain.Transaction{}, errors.New("transaction repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Transaction{}, errors.New("transaction repository: order id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.
			Where("orderId", "==", orderID).
			Where("type", "==", string(domain.TransactionTypePayout)).
			Limit(1)
	})
	if err != nil {
		return domain.Transaction{}, err
	}
	if len(docs) == 0 {
		return domain.Transaction{}, pfirestore.NewNotFoundError("transactions.query",
			fmt.Errorf("no payout for order %s", orderID))
	}
	return decodeTransaction(docs[0].ID, docs[0].Data), nil
}

// ListByOrder returns all ledger rows for the order, oldest first.
func (r *TransactionRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Transaction, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("transaction repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, errors.New("transaction repository: order id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.
			Where("orderId", "==", orderID).
			OrderBy("createdAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	return decodeTransactions(docs), nil
}

// ListByTypeAndStatus returns ledger rows of the given type and settlement
// state, optionally bounded by creation time. Used by revenue aggregation.
func (r *TransactionRepository) ListByTypeAndStatus(ctx context.Context, txnType domain.TransactionType, status domain.TransactionStatus, dateRange domain.RangeQuery[time.Time]) ([]domain.Transaction, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("transaction repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.
			Where("type", "==", string(txnType)).
			Where("status", "==", string(status))
		if dateRange.From != nil {
			q = q.Where("createdAt", ">=", dateRange.From.UTC())
		}
		if dateRange.To != nil {
			q = q.Where("createdAt", "<=", dateRange.To.UTC())
		}
		return q.OrderBy("createdAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	return decodeTransactions(docs), nil
}

func decodeTransactions(docs []pfirestore.Document[transactionDocument]) []domain.Transaction {
	if len(docs) == 0 {
		return nil
	}
	out := make([]domain.Transaction, 0, len(docs))
	for _, doc := range docs {
		out = append(out, decodeTransaction(doc.ID, doc.Data))
	}
	return out
}

func encodeTransaction(txn domain.Transaction) transactionDocument {
	doc := transactionDocument{
		OrderID:          txn.OrderID,
		BuyerID:          txn.BuyerID,
		SellerID:         txn.SellerID,
		Type:             string(txn.Type),
		AmountCents:      txn.AmountCents,
		PlatformFeeCents: txn.PlatformFeeCents,
		GatewayFeeCents:  txn.GatewayFeeCents,
		NetAmountCents:   txn.NetAmountCents,
		Currency:         strings.ToUpper(strings.TrimSpace(txn.Currency)),
		Status:           string(txn.Status),
		GatewayRef:       txn.GatewayRef,
		FailureCode:      txn.FailureCode,
		FailureMessage:   txn.FailureMessage,
		CreatedAt:        txn.CreatedAt.UTC(),
		UpdatedAt:        txn.UpdatedAt.UTC(),
	}
	if txn.CompletedAt != nil {
		completedAt := txn.CompletedAt.UTC()
		doc.CompletedAt = &completedAt
	}
	return doc
}

func decodeTransaction(id string, doc transactionDocument) domain.Transaction {
	return domain.Transaction{
		ID:               id,
		OrderID:          doc.OrderID,
		BuyerID:          doc.BuyerID,
		SellerID:         doc.SellerID,
		Type:             domain.TransactionType(doc.Type),
		AmountCents:      doc.AmountCents,
		PlatformFeeCents: doc.PlatformFeeCents,
		GatewayFeeCents:  doc.GatewayFeeCents,
		NetAmountCents:   doc.NetAmountCents,
		Currency:         doc.Currency,
		Status:           domain.TransactionStatus(doc.Status),
		GatewayRef:       doc.GatewayRef,
		FailureCode:      doc.FailureCode,
		FailureMessage:   doc.FailureMessage,
		CreatedAt:        doc.CreatedAt,
		UpdatedAt:        doc.UpdatedAt,
		CompletedAt:      doc.CompletedAt,
	}
}

type transactionDocument struct {
	OrderID          string     `firestore:"orderId"`
	BuyerID          string     `firestore:"buyerId"`
	SellerID         string     `firestore:"sellerId"`
	Type             string     `firestore:"type"`
	AmountCents      int64      `firestore:"amountCents"`
	PlatformFeeCents int64      `firestore:"platformFeeCents"`
	GatewayFeeCents  int64      `firestore:"gatewayFeeCents"`
	NetAmountCents   int64      `firestore:"netAmountCents"`
	Currency         string     `firestore:"currency"`
	Status           string     `firestore:"status"`
	GatewayRef       string     `firestore:"gatewayRef,omitempty"`
	FailureCode      string     `firestore:"failureCode,omitempty"`
	FailureMessage   string     `firestore:"failureMessage,omitempty"`
	CreatedAt        time.Time  `firestore:"createdAt"`
	UpdatedAt        time.Time  `firestore:"updatedAt"`
	CompletedAt      *time.Time `firestore:"completedAt,omitempty"`
}

var _ repositories.TransactionRepository = (*TransactionRepository)(nil)

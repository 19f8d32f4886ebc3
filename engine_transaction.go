package idp

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub002/transaction"
)

// CreateTransaction describes the createtransaction operation and its observable behavior.
//
// CreateTransaction may return an error when input validation, dependency calls, or security checks fail.
// CreateTransaction does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) CreateTransaction(ctx context.Context, tenantID, flow, authorizationID, presentedCookie string, rc RequestContext) (*transaction.Transaction, error) {
	if e == nil || e.transactionStore == nil {
		return nil, ErrEngineNotReady
	}
	if authorizationID == "" {
		return nil, ErrInvalidRequest
	}

	selected, err := e.SelectPolicy(ctx, tenantID, flow, rc)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	tx := &transaction.Transaction{
		ID:              uuid.NewString(),
		AuthorizationID: authorizationID,
		TenantID:        tenantID,
		Flow:            flow,
		Policy:          selected,
		Request:         cloneRequestContext(rc),
		SessionUserID:   e.presentedSessionUser(ctx, presentedCookie, tenantID),
		Status:          transaction.StatusPending,
		CreatedAt:       now.Unix(),
		ExpiresAt:       now.Add(e.config.Transaction.Lifetime).Unix(),
	}

	if err := e.transactionStore.Create(ctx, tx); err != nil {
		return nil, e.mapTransactionStoreError(err)
	}

	e.metricInc(MetricTransactionCreated)
	e.emitEvent(ctx, eventTransactionCreated, true, "", tenantID, "", tx.ID, nil, func() map[string]string {
		return map[string]string{
			"flow":             flow,
			"authorization_id": authorizationID,
			"client_id":        rc.ClientID,
			"policy":           selected.Description,
		}
	})

	return tx, nil
}

// GetTransaction describes the gettransaction operation and its observable behavior.
//
// GetTransaction may return an error when input validation, dependency calls, or security checks fail.
// GetTransaction does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) GetTransaction(ctx context.Context, transactionID string) (*transaction.Transaction, error) {
	if e == nil || e.transactionStore == nil {
		return nil, ErrEngineNotReady
	}

	tx, err := e.transactionStore.Get(ctx, transactionID)
	if err != nil {
		return nil, e.mapTransactionStoreError(err)
	}

	return tx, nil
}

// IsSatisfied describes the issatisfied operation and its observable behavior.
//
// IsSatisfied may return an error when input validation, dependency calls, or security checks fail.
// IsSatisfied does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) IsSatisfied(ctx context.Context, transactionID string) (bool, error) {
	tx, err := e.GetTransaction(ctx, transactionID)
	if err != nil {
		return false, err
	}
	return transactionSatisfied(tx)
}

// TransactionView describes the transactionview operation and its observable behavior.
//
// TransactionView may return an error when input validation, dependency calls, or security checks fail.
// TransactionView does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) TransactionView(ctx context.Context, transactionID string) (*TransactionView, error) {
	tx, err := e.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	satisfied, err := transactionSatisfied(tx)
	if err != nil {
		return nil, err
	}

	view := &TransactionView{
		ID:              tx.ID,
		AuthorizationID: tx.AuthorizationID,
		Flow:            tx.Flow,
		Status:          string(tx.Status),
		UserBound:       tx.UserID != "",
		Satisfied:       satisfied,
		Policy: AuthenticationPolicyView{
			Priority:         tx.Policy.Priority,
			Description:      tx.Policy.Description,
			AvailableMethods: append([]string(nil), tx.Policy.AvailableMethods...),
		},
		ExpiresAt: tx.ExpiresAt,
	}

	if len(tx.Methods) > 0 {
		view.Methods = make(map[string]MethodView, len(tx.Methods))
		for name, state := range tx.Methods {
			view.Methods[name] = MethodView{
				AttemptCount: state.AttemptCount,
				SuccessCount: state.SuccessCount,
			}
		}
	}

	return view, nil
}

// ExpireTransaction describes the expiretransaction operation and its observable behavior.
//
// ExpireTransaction may return an error when input validation, dependency calls, or security checks fail.
// ExpireTransaction does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ExpireTransaction(ctx context.Context, transactionID string) error {
	if e == nil || e.transactionStore == nil {
		return ErrEngineNotReady
	}

	tx, err := e.transactionStore.Get(ctx, transactionID)
	if err != nil {
		if errors.Is(err, transaction.ErrExpired) || errors.Is(err, transaction.ErrNotFound) {
			return e.transactionStore.Delete(ctx, transactionID)
		}
		return e.mapTransactionStoreError(err)
	}

	if err := e.transactionStore.Delete(ctx, transactionID); err != nil {
		return e.mapTransactionStoreError(err)
	}

	e.metricInc(MetricTransactionExpired)
	e.emitEvent(ctx, eventTransactionExpired, true, tx.UserID, tx.TenantID, "", tx.ID, nil, nil)

	return nil
}

func transactionSatisfied(tx *transaction.Transaction) (bool, error) {
	compiled, err := compileSnapshot(tx.Policy)
	if err != nil {
		return false, err
	}
	return compiled.Satisfied(tx), nil
}

func (e *Engine) mapTransactionStoreError(err error) error {
	switch {
	case errors.Is(err, transaction.ErrNotFound):
		return ErrTransactionNotFound
	case errors.Is(err, transaction.ErrExpired):
		return ErrTransactionExpired
	case errors.Is(err, transaction.ErrRedisUnavailable):
		return ErrStoreUnavailable
	default:
		return err
	}
}

func cloneRequestContext(rc RequestContext) RequestContext {
	out := rc
	out.Scopes = append([]string(nil), rc.Scopes...)
	out.ACRValues = append([]string(nil), rc.ACRValues...)
	return out
}

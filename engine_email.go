package idp

import (
	"context"
	"fmt"

	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub002/transaction"
)

func (e *Engine) executeEmailChallenge(ctx context.Context, tx *transaction.Transaction, params map[string]any) (*InteractionResult, error) {
	email, err := requiredString(params, "email")
	if err != nil {
		return nil, err
	}

	if e.credentials == nil {
		return nil, ErrEngineNotReady
	}
	if e.emailSender == nil {
		return nil, ErrDeliveryUnavailable
	}

	template, err := optionalString(params, "template", DefaultChallengeTemplate)
	if err != nil {
		return nil, err
	}

	userID, found, err := e.credentials.LookupEmail(ctx, tx.TenantID, email)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !found {
		userID = ""
	}

	return e.issueOTPChallenge(ctx, tx, MethodEmail, email, userID, func(ctx context.Context, code string) error {
		return e.emailSender.SendCode(ctx, tx.TenantID, email, code, template)
	})
}

func (e *Engine) executeEmailVerify(ctx context.Context, tx *transaction.Transaction, params map[string]any) (*InteractionResult, error) {
	code, err := requiredString(params, "code")
	if err != nil {
		return nil, err
	}
	return e.verifyOTPChallenge(ctx, tx, MethodEmail, code)
}

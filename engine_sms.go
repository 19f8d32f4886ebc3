package idp

import (
	"context"
	"fmt"

	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub002/transaction"
)

func (e *Engine) executeSMSChallenge(ctx context.Context, tx *transaction.Transaction, params map[string]any) (*InteractionResult, error) {
	phone, err := requiredString(params, "phone_number")
	if err != nil {
		return nil, err
	}

	if e.credentials == nil {
		return nil, ErrEngineNotReady
	}
	if e.smsSender == nil {
		return nil, ErrDeliveryUnavailable
	}

	template, err := optionalString(params, "template", DefaultChallengeTemplate)
	if err != nil {
		return nil, err
	}

	userID, found, err := e.credentials.LookupPhone(ctx, tx.TenantID, phone)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !found {
		userID = ""
	}

	return e.issueOTPChallenge(ctx, tx, MethodSMS, phone, userID, func(ctx context.Context, code string) error {
		return e.smsSender.SendCode(ctx, tx.TenantID, phone, code, template)
	})
}

func (e *Engine) executeSMSVerify(ctx context.Context, tx *transaction.Transaction, params map[string]any) (*InteractionResult, error) {
	code, err := requiredString(params, "code")
	if err != nil {
		return nil, err
	}
	return e.verifyOTPChallenge(ctx, tx, MethodSMS, code)
}

// Package threeds runs 3-D Secure cardholder authentication against the
// card brand's provider and keeps the authentication record.
package threeds

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/DanielPopoola/payment-security-core/internal/application"
	"github.com/DanielPopoola/payment-security-core/internal/domain"
	"github.com/DanielPopoola/payment-security-core/internal/infrastructure/telemetry"
	"github.com/google/uuid"
)

// CardResolver looks cards up by token. The vault service implements it.
type CardResolver interface {
	Resolve(ctx context.Context, token string) (*domain.Card, error)
}

type Orchestrator struct {
	repo      application.AuthenticationRepository
	cards     CardResolver
	providers map[domain.ProviderName]application.ThreeDSProvider
	publisher application.EventPublisher
	metrics   *telemetry.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

func NewOrchestrator(
	repo application.AuthenticationRepository,
	cards CardResolver,
	providers []application.ThreeDSProvider,
	publisher application.EventPublisher,
	metrics *telemetry.Metrics,
	logger *slog.Logger,
) *Orchestrator {
	byName := make(map[domain.ProviderName]application.ThreeDSProvider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &Orchestrator{
		repo:      repo,
		cards:     cards,
		providers: byName,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// providerFor returns the registered provider for the card's brand.
func (o *Orchestrator) providerFor(card *domain.Card) (application.ThreeDSProvider, bool) {
	name, ok := domain.ProviderForBrand(card.Brand)
	if !ok {
		return nil, false
	}
	p, ok := o.providers[name]
	return p, ok
}

func (o *Orchestrator) activeCard(ctx context.Context, token string) (*domain.Card, error) {
	card, err := o.cards.Resolve(ctx, token)
	if err != nil {
		return nil, domain.NewInternalError("failed to resolve card", err)
	}
	if card == nil || !card.Active {
		v := &domain.ValidationError{}
		v.Add("card_token", "does not name an active card")
		return nil, v
	}
	return card, nil
}

// Initiate starts authentication for a transaction. Brands without a
// registered provider need none and get NOT_REQUIRED without a stored record.
func (o *Orchestrator) Initiate(ctx context.Context, cmd InitiateCommand) (*InitiationResult, error) {
	if err := validateInitiate(cmd); err != nil {
		return nil, err
	}
	cmd.Currency = domain.NormalizeCurrency(cmd.Currency)

	card, err := o.activeCard(ctx, cmd.CardToken)
	if err != nil {
		return nil, err
	}

	existing, err := o.repo.FindByTransactionID(ctx, cmd.TransactionID)
	if err != nil {
		return nil, domain.NewInternalError("failed to look up authentication", err)
	}
	if existing != nil {
		v := &domain.ValidationError{}
		v.Add("transaction_id", "already has an authentication")
		return nil, v
	}

	provider, ok := o.providerFor(card)
	if !ok {
		o.logger.Info("3-D Secure not required",
			"transaction_id", cmd.TransactionID,
			"brand", card.Brand,
		)
		return &InitiationResult{Success: true, Status: domain.AuthStatusNotRequired}, nil
	}

	resp, err := provider.InitiateAuthentication(ctx, application.ThreeDSInitiateRequest{
		TransactionID:  cmd.TransactionID,
		CardToken:      card.Token,
		MaskedPAN:      card.MaskedNumber,
		ExpiryMonth:    card.ExpiryMonth,
		ExpiryYear:     card.ExpiryYear,
		Amount:         cmd.Amount.StringFixed(2),
		Currency:       cmd.Currency,
		MerchantID:     cmd.MerchantID,
		ReturnURL:      cmd.ReturnURL,
		BillingAddress: cmd.BillingAddress,
		DeviceData:     cmd.DeviceData,
		BrowserInfo:    cmd.BrowserInfo,
	})
	if err == nil && resp == nil {
		err = errors.New("provider returned no response")
	}
	if err != nil {
		return o.initiationError(cmd.TransactionID, provider.Name(), err), nil
	}

	params := domain.NewAuthenticationParams{
		ID:            uuid.NewString(),
		TransactionID: cmd.TransactionID,
		CardToken:     card.Token,
		Provider:      provider.Name(),
		Amount:        cmd.Amount,
		Currency:      cmd.Currency,
		MerchantID:    cmd.MerchantID,
	}
	now := o.now()

	var (
		auth   domain.Authentication
		events []domain.Event
	)
	switch resp.Status {
	case application.EnrollmentAuthenticated:
		pending := domain.NewPendingAuthentication(params, now)
		succeeded, event, err := pending.Succeed(resp.AuthenticationProof, now)
		if err != nil {
			return nil, domain.NewInternalError("failed to record frictionless authentication", err)
		}
		auth = succeeded
		events = []domain.Event{auth.Initiated(), event}
	case application.EnrollmentNotEnrolled, application.EnrollmentUnavailable:
		auth = domain.NewNotRequiredAuthentication(params, now)
		events = []domain.Event{auth.Initiated()}
	default:
		if resp.AcsURL == nil || resp.PaReq == nil {
			return o.initiationError(cmd.TransactionID, provider.Name(),
				fmt.Errorf("challenge response %q without ACS URL or PaReq", resp.Status)), nil
		}
		params.AcsURL = resp.AcsURL
		params.PaReq = resp.PaReq
		auth = domain.NewPendingAuthentication(params, now)
		events = []domain.Event{auth.Initiated()}
	}

	if err := o.repo.Add(ctx, &auth); err != nil {
		if _, ok := domain.AsValidationError(err); ok {
			return nil, err
		}
		return nil, domain.NewInternalError("failed to store authentication", err)
	}

	o.logger.Info("3-D Secure initiated",
		"transaction_id", auth.TransactionID,
		"authentication_id", auth.ID,
		"provider", auth.Provider,
		"status", auth.Status,
	)
	o.metrics.ThreeDSAuthentication(auth.Provider, auth.Status)
	o.publish(ctx, events...)

	return &InitiationResult{
		Success:             true,
		Status:              auth.Status,
		AuthenticationID:    auth.ID,
		Provider:            auth.Provider,
		AcsURL:              auth.AcsURL,
		PaReq:               auth.PaReq,
		AuthenticationProof: auth.AuthenticationProof,
	}, nil
}

func (o *Orchestrator) initiationError(transactionID string, provider domain.ProviderName, err error) *InitiationResult {
	o.logger.Error("3-D Secure initiation failed",
		"transaction_id", transactionID,
		"provider", provider,
		"error", err,
	)
	o.metrics.ThreeDSAuthentication(provider, domain.AuthStatusError)
	msg := err.Error()
	return &InitiationResult{
		Success:      false,
		Status:       domain.AuthStatusError,
		Provider:     provider,
		ErrorMessage: &msg,
	}
}

// Complete applies the cardholder's PaRes to a pending authentication. The
// record is locked for the duration, so concurrent completions apply once.
// A rejected PaRes is a FAILED result, not an error.
func (o *Orchestrator) Complete(ctx context.Context, transactionID, paRes string) (*CompletionResult, error) {
	var (
		result *CompletionResult
		event  domain.Event
		auth   domain.Authentication
	)

	err := o.repo.WithTx(ctx, func(repo application.AuthenticationRepository) error {
		current, err := repo.FindByTransactionIDForUpdate(ctx, transactionID)
		if err != nil {
			return domain.NewInternalError("failed to load authentication", err)
		}
		if current == nil {
			return domain.NewNotFoundError("authentication", transactionID)
		}
		if current.Status != domain.AuthStatusPending {
			return domain.NewInvalidStateError(string(current.Status), string(domain.AuthStatusPending))
		}

		next, ev, err := o.resolve(ctx, *current, paRes)
		if err != nil {
			return err
		}
		if err := repo.Update(ctx, &next); err != nil {
			if domain.IsErrorCode(err, domain.ErrCodeConcurrentModification) {
				return err
			}
			return domain.NewInternalError("failed to update authentication", err)
		}

		auth, event = next, ev
		result = &CompletionResult{
			Success:             next.Status == domain.AuthStatusSuccessful,
			Status:              next.Status,
			AuthenticationProof: next.AuthenticationProof,
			ErrorMessage:        next.FailureReason,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.logger.Info("3-D Secure completed",
		"transaction_id", transactionID,
		"provider", auth.Provider,
		"status", auth.Status,
	)
	o.metrics.ThreeDSAuthentication(auth.Provider, auth.Status)
	o.publish(ctx, event)
	return result, nil
}

// resolve decides the outcome of a pending authentication.
func (o *Orchestrator) resolve(ctx context.Context, auth domain.Authentication, paRes string) (domain.Authentication, domain.Event, error) {
	fail := func(reason string) (domain.Authentication, domain.Event, error) {
		next, ev, err := auth.Fail(reason, o.now())
		if err != nil {
			return auth, nil, err
		}
		return next, ev, nil
	}

	if err := validatePaRes(paRes); err != nil {
		o.logger.Warn("rejected PaRes", "transaction_id", auth.TransactionID, "error", err)
		return fail("invalid PaRes: " + err.Error())
	}

	provider, ok := o.providers[auth.Provider]
	if !ok {
		return fail(fmt.Sprintf("provider %s is not registered", auth.Provider))
	}

	resp, err := provider.CompleteAuthentication(ctx, auth.TransactionID, paRes)
	if err != nil {
		o.logger.Error("3-D Secure completion call failed",
			"transaction_id", auth.TransactionID,
			"provider", auth.Provider,
			"error", err,
		)
		return fail("provider error: " + err.Error())
	}
	if resp == nil || !resp.Success {
		reason := "authentication failed"
		if resp != nil && resp.ErrorMessage != nil {
			reason = *resp.ErrorMessage
		}
		return fail(reason)
	}

	next, ev, err := auth.Succeed(resp.AuthenticationProof, o.now())
	if err != nil {
		return auth, nil, err
	}
	return next, ev, nil
}

// GetStatus never fails. Storage errors answer ERROR.
func (o *Orchestrator) GetStatus(ctx context.Context, transactionID string) domain.AuthenticationStatus {
	auth, err := o.repo.FindByTransactionID(ctx, transactionID)
	if err != nil {
		o.logger.Error("failed to read authentication status", "transaction_id", transactionID, "error", err)
		return domain.AuthStatusError
	}
	if auth == nil {
		return domain.AuthStatusNotFound
	}
	return auth.Status
}

// Get returns the full record, or nil when there is none.
func (o *Orchestrator) Get(ctx context.Context, transactionID string) (*domain.Authentication, error) {
	auth, err := o.repo.FindByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, domain.NewInternalError("failed to look up authentication", err)
	}
	return auth, nil
}

// IsEligible reports whether the card is active and its brand has a registered provider.
func (o *Orchestrator) IsEligible(ctx context.Context, cardToken string) bool {
	card, err := o.cards.Resolve(ctx, cardToken)
	if err != nil {
		o.logger.Error("eligibility lookup failed", "card_token", cardToken, "error", err)
		return false
	}
	if card == nil || !card.Active {
		return false
	}
	_, ok := o.providerFor(card)
	return ok
}

// AbandonStale marks up to limit challenges pending for longer than olderThan
// ABANDONED and returns how many it moved. Records completed meanwhile are
// skipped. The scan pages past records that fail to update so they cannot
// hold back newer ones.
func (o *Orchestrator) AbandonStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}
	cutoff := o.now().Add(-olderThan)

	abandoned, failed := 0, 0
	var cursor application.StaleCursor
	for abandoned < limit {
		page := limit - abandoned
		stale, err := o.repo.FindStalePending(ctx, cutoff, cursor, page)
		if err != nil {
			o.metrics.AbandonedAuthentications(abandoned)
			return abandoned, domain.NewInternalError("failed to list stale authentications", err)
		}

		for _, candidate := range stale {
			if err := ctx.Err(); err != nil {
				o.metrics.AbandonedAuthentications(abandoned)
				return abandoned, err
			}
			cursor = application.StaleCursor{CreatedAt: candidate.CreatedAt, TransactionID: candidate.TransactionID}

			moved, err := o.abandon(ctx, candidate)
			if err != nil {
				failed++
				o.logger.Warn("failed to abandon authentication",
					"transaction_id", candidate.TransactionID,
					"error", err,
				)
				continue
			}
			if moved {
				abandoned++
			}
		}
		if len(stale) < page {
			break
		}
	}

	o.metrics.AbandonedAuthentications(abandoned)
	if abandoned > 0 || failed > 0 {
		o.logger.Info("abandoned stale authentications",
			"count", abandoned,
			"failed", failed,
			"cutoff", cutoff,
		)
	}
	return abandoned, nil
}

// abandon moves one record under its row lock. It reports false when the
// record left PENDING since it was listed.
func (o *Orchestrator) abandon(ctx context.Context, candidate *domain.Authentication) (bool, error) {
	var event domain.Event
	err := o.repo.WithTx(ctx, func(repo application.AuthenticationRepository) error {
		current, err := repo.FindByTransactionIDForUpdate(ctx, candidate.TransactionID)
		if err != nil {
			return err
		}
		if current == nil || current.Status != domain.AuthStatusPending {
			return nil
		}
		next, ev, err := current.Abandon(o.now())
		if err != nil {
			return err
		}
		if err := repo.Update(ctx, &next); err != nil {
			return err
		}
		event = ev
		return nil
	})
	if err != nil || event == nil {
		return false, err
	}

	o.metrics.ThreeDSAuthentication(candidate.Provider, domain.AuthStatusAbandoned)
	o.publish(ctx, event)
	return true, nil
}

func (o *Orchestrator) publish(ctx context.Context, events ...domain.Event) {
	if o.publisher == nil || len(events) == 0 {
		return
	}
	if err := o.publisher.Publish(ctx, events...); err != nil {
		o.logger.Warn("failed to publish events", "count", len(events), "error", err)
	}
}

package sandbox

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/mealsub/internal/payment/domain"
)

const (
	MethodCard         = "card"
	MethodEwallet      = "ewallet"
	MethodBankTransfer = "bank_transfer"

	// MethodDecline is always declined.
	MethodDecline = "sandbox_decline"
	// MethodError always fails with a transport error.
	MethodError = "sandbox_error"
)

var ErrSandboxUnavailable = errors.New("sandbox_unavailable")

type Options struct {
	// DeclineAmounts lists charge amounts that are declined regardless of method.
	DeclineAmounts []decimal.Decimal
}

// Processor settles charges in memory and never talks to the network.
type Processor struct {
	opts Options

	mu      sync.Mutex
	charges map[string]decimal.Decimal
}

func New(opts Options) *Processor {
	return &Processor{
		opts:    opts,
		charges: map[string]decimal.Decimal{},
	}
}

func (p *Processor) Name() string { return "sandbox" }

func (p *Processor) Methods() []string {
	return []string{MethodCard, MethodEwallet, MethodBankTransfer, MethodDecline, MethodError}
}

func (p *Processor) Process(ctx context.Context, req paymentdomain.ProcessRequest) (paymentdomain.ProcessResult, error) {
	if err := ctx.Err(); err != nil {
		return paymentdomain.ProcessResult{}, err
	}

	switch strings.ToLower(strings.TrimSpace(req.Method)) {
	case MethodError:
		return paymentdomain.ProcessResult{}, ErrSandboxUnavailable
	case MethodDecline:
		return paymentdomain.ProcessResult{DeclineReason: "card_declined"}, nil
	}
	for _, amount := range p.opts.DeclineAmounts {
		if amount.Equal(req.Amount) {
			return paymentdomain.ProcessResult{DeclineReason: "insufficient_funds"}, nil
		}
	}
	if !req.Amount.IsPositive() {
		return paymentdomain.ProcessResult{DeclineReason: "invalid_amount"}, nil
	}

	ref := "sbx_ch_" + req.PaymentID.String()
	p.mu.Lock()
	p.charges[ref] = req.Amount
	p.mu.Unlock()

	return paymentdomain.ProcessResult{Success: true, TransactionRef: ref}, nil
}

// Refund accepts partial refunds until the captured amount is exhausted.
func (p *Processor) Refund(ctx context.Context, transactionRef string, amount decimal.Decimal) (paymentdomain.ProcessResult, error) {
	if err := ctx.Err(); err != nil {
		return paymentdomain.ProcessResult{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	captured, ok := p.charges[transactionRef]
	if !ok {
		return paymentdomain.ProcessResult{DeclineReason: "unknown_transaction"}, nil
	}
	if !amount.IsPositive() || amount.GreaterThan(captured) {
		return paymentdomain.ProcessResult{DeclineReason: "amount_exceeds_capture"}, nil
	}
	p.charges[transactionRef] = captured.Sub(amount)

	ref := "sbx_rf_" + ulid.MustNew(ulid.Timestamp(time.Now()), ulid.DefaultEntropy()).String()
	return paymentdomain.ProcessResult{Success: true, TransactionRef: ref}, nil
}

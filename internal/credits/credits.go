// Package credits defines the billing gate the pipeline consults around every
// billable operation. The ledger itself lives outside this service.
package credits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

type Operation string

const (
	OpImage        Operation = "image"
	OpVoice        Operation = "voice"
	OpSegmentBasic Operation = "segment_basic"
	OpSegmentVidu  Operation = "segment_vidu"
	OpFinalVideo   Operation = "final_video"
)

var (
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrUnknownOperation    = errors.New("unknown billable operation")
)

// ParseOperation maps a configured operation name to an Operation.
func ParseOperation(name string) (Operation, error) {
	switch op := Operation(name); op {
	case OpImage, OpVoice, OpSegmentBasic, OpSegmentVidu, OpFinalVideo:
		return op, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOperation, name)
}

// Gate is consulted in two phases: Reserve before the work starts, Commit
// once the outcome is known. A Reserve error means the work must not run.
type Gate interface {
	Reserve(ctx context.Context, userID string, op Operation) error
	Commit(ctx context.Context, userID string, op Operation, ok bool)
}

// GateFunc adapts a plain check function. Commit is a no-op.
type GateFunc func(ctx context.Context, userID string, op Operation) error

func (f GateFunc) Reserve(ctx context.Context, userID string, op Operation) error {
	return f(ctx, userID, op)
}

func (f GateFunc) Commit(context.Context, string, Operation, bool) {}

// Unlimited admits everything.
type Unlimited struct{}

func (Unlimited) Reserve(context.Context, string, Operation) error { return nil }

func (Unlimited) Commit(context.Context, string, Operation, bool) {}

// Guard runs fn between Reserve and Commit.
func Guard(ctx context.Context, g Gate, userID string, op Operation, fn func() error) error {
	if err := g.Reserve(ctx, userID, op); err != nil {
		if !errors.Is(err, ErrInsufficientCredits) {
			err = fmt.Errorf("%w: %v", ErrInsufficientCredits, err)
		}
		return err
	}
	err := fn()
	g.Commit(ctx, userID, op, err == nil)
	return err
}

// Budget is an in-memory gate with a fixed allowance per user and operation.
// Operations without a limit pass freely. Failed operations are refunded on
// Commit.
type Budget struct {
	mu        sync.Mutex
	remaining map[string]map[Operation]int
	limits    map[Operation]int
}

func NewBudget(limits map[Operation]int) *Budget {
	return &Budget{
		remaining: make(map[string]map[Operation]int),
		limits:    limits,
	}
}

// NewBudgetFromConfig builds a Budget from operation names. It returns nil
// when no limits are set.
func NewBudgetFromConfig(limits map[string]int) (*Budget, error) {
	if len(limits) == 0 {
		return nil, nil
	}
	parsed := make(map[Operation]int, len(limits))
	for name, n := range limits {
		op, err := ParseOperation(name)
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, fmt.Errorf("credit limit for %s is negative", op)
		}
		parsed[op] = n
	}
	return NewBudget(parsed), nil
}

func (b *Budget) Reserve(ctx context.Context, userID string, op Operation) error {
	if _, limited := b.limits[op]; !limited {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	user, ok := b.remaining[userID]
	if !ok {
		user = make(map[Operation]int, len(b.limits))
		for k, v := range b.limits {
			user[k] = v
		}
		b.remaining[userID] = user
	}
	if user[op] <= 0 {
		return fmt.Errorf("%w: %s for user %s", ErrInsufficientCredits, op, userID)
	}
	user[op]--
	return nil
}

func (b *Budget) Commit(ctx context.Context, userID string, op Operation, ok bool) {
	if _, limited := b.limits[op]; ok || !limited {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if user, found := b.remaining[userID]; found {
		user[op]++
	}
	slog.Debug("Refunded credit", "user", userID, "op", op)
}

func (b *Budget) Remaining(userID string, op Operation) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if user, ok := b.remaining[userID]; ok {
		return user[op]
	}
	return b.limits[op]
}

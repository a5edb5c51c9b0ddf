package credits

import (
	"context"
	"errors"
	"testing"
)

func TestGuard(t *testing.T) {
	ctx := context.Background()
	b := NewBudget(map[Operation]int{OpFinalVideo: 1})

	ran := 0
	work := func() error { ran++; return nil }

	if err := Guard(ctx, b, "u1", OpFinalVideo, work); err != nil {
		t.Fatalf("Guard() error = %v", err)
	}
	if err := Guard(ctx, b, "u1", OpFinalVideo, work); !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("Guard() error = %v, want ErrInsufficientCredits", err)
	}
	if ran != 1 {
		t.Errorf("work ran %d times, want 1", ran)
	}
	if got := b.Remaining("u2", OpFinalVideo); got != 1 {
		t.Errorf("Remaining(u2) = %d, want 1", got)
	}
}

func TestGuardRefundsFailures(t *testing.T) {
	ctx := context.Background()
	b := NewBudget(map[Operation]int{OpImage: 1})
	boom := errors.New("boom")

	if err := Guard(ctx, b, "u1", OpImage, func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("Guard() error = %v, want boom", err)
	}
	if got := b.Remaining("u1", OpImage); got != 1 {
		t.Errorf("Remaining() = %d after a failed op, want 1", got)
	}
}

func TestGateFunc(t *testing.T) {
	deny := GateFunc(func(ctx context.Context, userID string, op Operation) error {
		if op == OpSegmentVidu {
			return errors.New("plan does not include motion video")
		}
		return nil
	})

	err := Guard(context.Background(), deny, "u1", OpSegmentVidu, func() error {
		t.Fatal("work must not run when the gate denies")
		return nil
	})
	if !errors.Is(err, ErrInsufficientCredits) {
		t.Errorf("Guard() error = %v, want ErrInsufficientCredits", err)
	}

	if err := Guard(context.Background(), Unlimited{}, "u1", OpVoice, func() error { return nil }); err != nil {
		t.Errorf("Guard(Unlimited) error = %v", err)
	}
}

func TestNewBudgetFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		limits  map[string]int
		wantNil bool
		wantErr bool
		wantIs  error
	}{
		{name: "empty", wantNil: true},
		{name: "known", limits: map[string]int{"final_video": 1, "segment_vidu": 3}},
		{name: "unknown", limits: map[string]int{"upscale": 2}, wantErr: true, wantIs: ErrUnknownOperation},
		{name: "negative", limits: map[string]int{"image": -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewBudgetFromConfig(tt.limits)
			if tt.wantErr {
				if err == nil {
					t.Fatal("NewBudgetFromConfig() error = nil")
				}
				if tt.wantIs != nil && !errors.Is(err, tt.wantIs) {
					t.Errorf("NewBudgetFromConfig() error = %v, want %v", err, tt.wantIs)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewBudgetFromConfig() error = %v", err)
			}
			if (b == nil) != tt.wantNil {
				t.Errorf("NewBudgetFromConfig() = %v, want nil %v", b, tt.wantNil)
			}
		})
	}
}

func TestBudgetUnlistedOperationsPass(t *testing.T) {
	ctx := context.Background()
	b, err := NewBudgetFromConfig(map[string]int{"final_video": 0})
	if err != nil {
		t.Fatal(err)
	}

	for range 3 {
		if err := Guard(ctx, b, "u1", OpImage, func() error { return nil }); err != nil {
			t.Fatalf("Guard(image) error = %v", err)
		}
	}
	if err := Guard(ctx, b, "u1", OpFinalVideo, func() error { return nil }); !errors.Is(err, ErrInsufficientCredits) {
		t.Errorf("Guard(final_video) error = %v, want ErrInsufficientCredits", err)
	}
}

package ai

import (
	"errors"
	"testing"

	"github.com/sony/gobreaker"
)

func TestGenerationErrorMapsBreakerRefusals(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantTagged bool
	}{
		{"open circuit", gobreaker.ErrOpenState, true},
		{"half open saturated", gobreaker.ErrTooManyRequests, true},
		{"backend error passes through", errors.New("deadline exceeded"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := generationError(tt.err)
			if got == nil {
				t.Fatal("expected a non-nil error")
			}
			if tagged := errors.Is(got, ErrGenerationUnavailable); tagged != tt.wantTagged {
				t.Errorf("errors.Is(got, ErrGenerationUnavailable) = %v, want %v", tagged, tt.wantTagged)
			}
			if !tt.wantTagged && !errors.Is(got, tt.err) {
				t.Error("non-breaker errors must pass through unchanged")
			}
		})
	}
}

func TestGetRateLimitsUnknownTierDefaultsToFree(t *testing.T) {
	free := getRateLimits("free")
	unknown := getRateLimits("enterprise-unknown")
	if unknown != free {
		t.Errorf("unknown tier got %+v, want free tier %+v", unknown, free)
	}
}

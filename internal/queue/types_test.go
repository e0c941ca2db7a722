package queue

import (
	"errors"
	"testing"
)

func TestCanTransition(t *testing.T) {
	t.Parallel()

	allowed := map[Status][]Status{
		StatusPending:   {StatusApproved, StatusRejected},
		StatusApproved:  {StatusUploading},
		StatusUploading: {StatusCompleted, StatusFailed, StatusApproved},
		StatusFailed:    {StatusApproved},
		StatusCompleted: {},
		StatusRejected:  {},
	}

	for _, from := range AllStatuses {
		for _, to := range AllStatuses {
			if from == to {
				continue
			}
			want := false
			for _, ok := range allowed[from] {
				if to == ok {
					want = true
					break
				}
			}
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestValidateTransition(t *testing.T) {
	t.Parallel()

	if err := ValidateTransition(StatusPending, StatusPending); err != nil {
		t.Errorf("same-status move should be a no-op, got %v", err)
	}
	if err := ValidateTransition(StatusPending, StatusApproved); err != nil {
		t.Errorf("pending -> approved should be legal, got %v", err)
	}
	err := ValidateTransition(StatusCompleted, StatusApproved)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("completed is terminal, got %v", err)
	}
	err = ValidateTransition(StatusPending, StatusUploading)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("pending cannot skip approval, got %v", err)
	}
}

func TestStatusValid(t *testing.T) {
	t.Parallel()

	for _, s := range AllStatuses {
		if !s.Valid() {
			t.Errorf("%q should be valid", s)
		}
	}
	if Status("queued").Valid() {
		t.Error("unknown status should be invalid")
	}
}

package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"configuration", NewConfigurationError("bogus_key", "unrecognized parameter"), KindConfiguration},
		{"simulation", NewSimulationError("engine exited", errors.New("exit status 1")), KindSimulation},
		{"shape", NewShapeMismatchError("length %d != %d", 3, 4), KindShapeMismatch},
		{"store", NewStoreError("read", "novid_70_58_23649", ErrArtifactNotFound), KindStore},
		{"wrapped store", fmt.Errorf("loading: %w", NewStoreError("read", "k", nil)), KindStore},
		{"canceled", fmt.Errorf("cell: %w", context.Canceled), KindCanceled},
		{"other", errors.New("boom"), KindInternal},
		{"nil", nil, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ErrorKind(tc.err); got != tc.want {
				t.Errorf("ErrorKind() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestStoreError_CarriesKey(t *testing.T) {
	err := fmt.Errorf("aggregate: %w", NewStoreError("read", "non_novid_100_12_23649", ErrArtifactNotFound))

	var se *StoreError
	if !errors.As(err, &se) {
		t.Fatalf("expected StoreError in chain")
	}
	if se.Key != "non_novid_100_12_23649" {
		t.Errorf("key = %q", se.Key)
	}
	if !IsNotFoundError(err) {
		t.Errorf("expected not-found cause to be preserved")
	}
}

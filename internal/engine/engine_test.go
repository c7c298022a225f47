package engine

import (
	"errors"
	"testing"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status Status
		want   Disposition
	}{
		{StatusOK, DispositionOK},
		{StatusBufferFull, DispositionTransient},
		{StatusNotFound, DispositionFallback},
		{StatusInternalError, DispositionFatal},
		{Status(42), DispositionFatal},
	}
	for _, tc := range tests {
		if got := Classify(tc.status); got != tc.want {
			t.Errorf("Classify(%v) = %v, want %v", tc.status, got, tc.want)
		}
	}
}

func TestStatusErr(t *testing.T) {
	if err := StatusOK.Err(); err != nil {
		t.Fatalf("StatusOK.Err() = %v, want nil", err)
	}
	tests := []struct {
		status Status
		want   error
	}{
		{StatusBufferFull, ErrBufferFull},
		{StatusNotFound, ErrNotFound},
		{StatusInternalError, ErrInternal},
		{Status(99), ErrInternal},
	}
	for _, tc := range tests {
		if err := tc.status.Err(); !errors.Is(err, tc.want) {
			t.Errorf("%v.Err() = %v, want %v", tc.status, err, tc.want)
		}
	}
}

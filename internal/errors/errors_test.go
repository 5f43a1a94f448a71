package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "error without cause",
			err:  &AppError{Code: ErrCodeNotFound, Message: "reminder not found"},
			want: "reminder not found",
		},
		{
			name: "error with cause",
			err: &AppError{
				Code:    ErrCodeInternal,
				Message: "claim job",
				Cause:   errors.New("connection reset"),
			},
			want: "claim job: connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("AppError.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Wrap(cause, ErrCodeInternal, "wrapped")

	if !errors.Is(err, cause) {
		t.Errorf("errors.Is(Wrap(cause)) = false, want true")
	}
}

func TestWrap_Nil(t *testing.T) {
	if err := Wrap(nil, ErrCodeInternal, "nothing"); err != nil {
		t.Errorf("Wrap(nil) = %v, want nil", err)
	}
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{name: "not found", err: NotFound("job not found"), check: IsNotFound},
		{name: "conflict", err: Conflict("stage changed"), check: IsConflict},
		{name: "validation", err: ValidationField("target", "target is required"), check: IsValidation},
		{name: "timeout", err: &AppError{Code: ErrCodeTimeout}, check: IsTimeout},
		{name: "foreign key", err: &AppError{Code: ErrCodeForeignKey}, check: IsForeignKey},
		{name: "wrapped in fmt", err: fmt.Errorf("outer: %w", NotFound("x")), check: IsNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(tt.err) {
				t.Errorf("predicate returned false for %v", tt.err)
			}
		})
	}
}

func TestGetCodeAndField(t *testing.T) {
	err := fmt.Errorf("create: %w", ValidationField("customer_id", "customer_id is required"))
	if got := GetCode(err); got != ErrCodeValidation {
		t.Errorf("GetCode() = %v, want %v", got, ErrCodeValidation)
	}
	if got := GetField(err); got != "customer_id" {
		t.Errorf("GetField() = %v, want customer_id", got)
	}
	if got := GetCode(errors.New("plain")); got != "" {
		t.Errorf("GetCode(plain) = %v, want empty", got)
	}
}

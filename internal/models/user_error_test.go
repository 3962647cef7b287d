package models

import (
	"errors"
	"fmt"
	"testing"
)

func TestAsUserError(t *testing.T) {
	fallback := NewUserError(CodeAIExtractionFailed, "extraction failed")
	original := NewUserError(CodePDFNoText, "no text").WithSuggestion("try a different PDF")

	tests := []struct {
		name string
		err  error
		want *UserError
	}{
		{name: "nil", err: nil, want: nil},
		{name: "user error passes through", err: original, want: original},
		{name: "wrapped user error passes through", err: fmt.Errorf("stage: %w", original), want: original},
		{name: "opaque error uses fallback", err: errors.New("boom"), want: fallback},
		{name: "incomplete user error uses fallback", err: &UserError{Code: "x"}, want: fallback},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AsUserError(tt.err, fallback); got != tt.want {
				t.Errorf("AsUserError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUserError_CopiesOnModify(t *testing.T) {
	base := NewUserError(CodeSaveShopifyError, "rejected")
	withDetail := base.WithDetail("messages", []string{"value too long"})

	if base.Details != nil {
		t.Error("WithDetail must not mutate the receiver")
	}
	if withDetail.Details["messages"] == nil {
		t.Error("expected detail to be set on copy")
	}
	if withDetail.Namespace() != "save" {
		t.Errorf("Namespace() = %q, want save", withDetail.Namespace())
	}
	if got := base.WithSuggestion("fix it").Error(); got != "save.shopify_error: rejected (fix it)" {
		t.Errorf("Error() = %q", got)
	}
}

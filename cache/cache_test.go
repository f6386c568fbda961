package cache

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateKey(t *testing.T) {
	tests := []struct {
		key  string
		want error
	}{
		{"chatrelay:reply:gemini-pro:abc", nil},
		{"", ErrInvalidKey},
		{"   ", ErrInvalidKey},
		{"a\nb", ErrInvalidKey},
		{"a\rb", ErrInvalidKey},
		{strings.Repeat("k", MaxKeyLength), nil},
		{strings.Repeat("k", MaxKeyLength+1), ErrKeyTooLong},
	}

	for _, tt := range tests {
		if err := ValidateKey(tt.key); !errors.Is(err, tt.want) {
			t.Errorf("ValidateKey(%.20q) = %v, want %v", tt.key, err, tt.want)
		}
	}
}

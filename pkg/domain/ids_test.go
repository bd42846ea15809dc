package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "fleetops/pkg/domain-errors"
)

func TestParseAccountID_SecurityInvariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    AccountID
		wantErr bool
	}{
		{"SQL injection attempt", "1; DROP TABLE users;--", 0, true},
		{"Path traversal", "../../etc/passwd", 0, true},
		{"Oversized input", strings.Repeat("9", 100), 0, true},
		{"Empty string", "", 0, true},
		{"Zero", "0", 0, true},
		{"Negative", "-42", 0, true},
		{"Whitespace only", "   ", 0, true},
		{"Valid", "42", 42, false},
		{"Valid with padding", " 7 ", 7, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAccountID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseLocationID(t *testing.T) {
	t.Run("empty means not scoped", func(t *testing.T) {
		loc, err := ParseLocationID("  ")
		require.NoError(t, err)
		assert.True(t, loc.IsZero())
	})

	t.Run("trims surrounding whitespace", func(t *testing.T) {
		loc, err := ParseLocationID(" warehouse-3 ")
		require.NoError(t, err)
		assert.Equal(t, LocationID("warehouse-3"), loc)
	})

	t.Run("rejects oversized input", func(t *testing.T) {
		_, err := ParseLocationID(strings.Repeat("x", 200))
		require.Error(t, err)
	})
}

package middleware

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateCustomerNumber(t *testing.T) {
	tests := []struct {
		name    string
		number  string
		wantErr bool
	}{
		{"bare digits", "5511999999999", false},
		{"full endpoint", "5511999999999@s.whatsapp.net", false},
		{"empty", "", true},
		{"letters", "55abc", true},
		{"too long", strings.Repeat("9", 65), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCustomerNumber(tt.number)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidateMessageContent(t *testing.T) {
	require.NoError(t, ValidateMessageContent("Olá"))
	require.Error(t, ValidateMessageContent(""))
	require.Error(t, ValidateMessageContent(strings.Repeat("a", 100001)))
	require.Error(t, ValidateMessageContent(string([]byte{0xff, 0xfe})))
}

func TestParseID(t *testing.T) {
	id, err := ParseID("42")
	require.NoError(t, err)
	require.EqualValues(t, 42, id)

	for _, raw := range []string{"", "0", "-1", "abc", "1.5"} {
		_, err := ParseID(raw)
		require.Error(t, err, raw)
	}
}

package signedcookie_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/connector-manager/pkg/signedcookie"
)

const (
	key      = "0123456789abcdef0123456789abcdef"
	otherKey = "fedcba9876543210fedcba9876543210"
)

func TestNewSigner(t *testing.T) {
	_, err := signedcookie.NewSigner([]byte("short"))
	require.ErrorIs(t, err, signedcookie.ErrKeyTooShort)

	_, err = signedcookie.NewSigner([]byte(key))
	require.NoError(t, err)
}

func TestSigner(t *testing.T) {
	signer, err := signedcookie.NewSigner([]byte(key))
	require.NoError(t, err)

	other, err := signedcookie.NewSigner([]byte(otherKey))
	require.NoError(t, err)

	signed := signer.Sign("some-session-id")

	tests := []struct {
		name    string
		signer  *signedcookie.Signer
		input   string
		want    string
		wantErr error
	}{
		{
			name:   "Verify a value successfully",
			signer: signer,
			input:  signed,
			want:   "some-session-id",
		},
		{
			name:    "Mismatched key",
			signer:  other,
			input:   signed,
			wantErr: signedcookie.ErrSignature,
		},
		{
			name:    "Tampered value",
			signer:  signer,
			input:   "other-session-id" + signed[strings.Index(signed, "."):],
			wantErr: signedcookie.ErrSignature,
		},
		{
			name:    "Missing signature",
			signer:  signer,
			input:   "some-session-id",
			wantErr: signedcookie.ErrMalformed,
		},
		{
			name:    "Non hex signature",
			signer:  signer,
			input:   "some-session-id.zz",
			wantErr: signedcookie.ErrMalformed,
		},
		{
			name:    "Empty value",
			signer:  signer,
			input:   ".abcd",
			wantErr: signedcookie.ErrMalformed,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.signer.Verify(tc.input)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

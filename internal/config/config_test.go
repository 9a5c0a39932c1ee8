package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRedirectURI(t *testing.T) {
	tests := []struct {
		name      string
		provider  string
		uri       string
		assertErr assert.ErrorAssertionFunc
	}{
		{name: "provider callback", provider: ProviderMailchimp, uri: "https://connect.example.com/mailchimp/callback", assertErr: assert.NoError},
		{name: "flat callback", provider: ProviderConstantContact, uri: "https://connect.example.com/constantcontact_callback", assertErr: assert.NoError},
		{name: "bare callback of the default provider", provider: ProviderMailchimp, uri: "http://127.0.0.1:5000/callback", assertErr: assert.NoError},
		{name: "bare callback of another provider", provider: ProviderConstantContact, uri: "https://app.example.com/callback", assertErr: assert.Error},
		{name: "trailing slash", provider: ProviderGoogle, uri: "https://connect.example.com/google/callback/", assertErr: assert.NoError},
		{name: "empty", provider: ProviderGoogle, uri: "", assertErr: assert.Error},
		{name: "relative", provider: ProviderGoogle, uri: "/google/callback", assertErr: assert.Error},
		{name: "bad scheme", provider: ProviderGoogle, uri: "ftp://example.com/google/callback", assertErr: assert.Error},
		{name: "other provider's callback", provider: ProviderGoogle, uri: "https://example.com/mailchimp/callback", assertErr: assert.Error},
		{name: "other provider's flat callback", provider: ProviderGoogle, uri: "https://example.com/mailchimp_callback", assertErr: assert.Error},
		{name: "not a callback", provider: ProviderConstantContact, uri: "https://example.com/constantcontact/authorize", assertErr: assert.Error},
		{name: "unparsable", provider: ProviderGoogle, uri: "https://exa mple.com/%zz", assertErr: assert.Error},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.assertErr(t, ValidateRedirectURI(tt.provider, ProviderMailchimp, tt.uri))
		})
	}
}

func TestProviders_ByName(t *testing.T) {
	p := Providers{
		Mailchimp:       Provider{RedirectURI: "m"},
		ConstantContact: Provider{RedirectURI: "c"},
		Google:          Provider{RedirectURI: "g"},
	}

	for name, want := range map[string]string{
		ProviderMailchimp:       "m",
		ProviderConstantContact: "c",
		ProviderGoogle:          "g",
	} {
		got, ok := p.ByName(name)
		assert.True(t, ok, name)
		assert.Equal(t, want, got.RedirectURI)
	}

	_, ok := p.ByName("hubspot")
	assert.False(t, ok)
}

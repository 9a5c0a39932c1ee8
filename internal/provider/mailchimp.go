package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"

	slogctx "github.com/veqryn/slog-context"
)

const (
	mailchimpAuthURL     = "https://login.mailchimp.com/oauth2/authorize"
	mailchimpTokenURL    = "https://login.mailchimp.com/oauth2/token"
	mailchimpMetadataURL = "https://login.mailchimp.com/oauth2/metadata"

	// ServerPrefixNotFound is stored when the metadata lookup fails, so a
	// later extraction can tell a broken lookup from a missing credential.
	ServerPrefixNotFound = "dc_not_found"
)

type mailchimpMetadata struct {
	DC          string `json:"dc"`
	APIEndpoint string `json:"api_endpoint"`
	AccountName string `json:"accountname"`
	Login       struct {
		Email string `json:"login_email"`
	} `json:"login"`
}

// MailchimpMetadata resolves the data center of the authorized account.
type MailchimpMetadata struct {
	URL    string
	Client *http.Client
}

func (m MailchimpMetadata) Enrich(ctx context.Context, token *oauth2.Token) (Details, error) {
	meta, err := m.fetch(ctx, token.AccessToken)
	if err != nil {
		slogctx.Warn(ctx, "Failed to look up Mailchimp metadata", "error", err)
		return Details{ServerPrefix: ServerPrefixNotFound}, nil
	}

	return Details{
		ServerPrefix: meta.DC,
		Email:        meta.Login.Email,
		Name:         meta.AccountName,
	}, nil
}

func (m MailchimpMetadata) fetch(ctx context.Context, accessToken string) (mailchimpMetadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.URL, nil)
	if err != nil {
		return mailchimpMetadata{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "OAuth "+accessToken)
	req.Header.Set("Accept", "application/json")

	client := m.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return mailchimpMetadata{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return mailchimpMetadata{}, fmt.Errorf("metadata lookup failed with status %d: %s", resp.StatusCode, body)
	}

	var meta mailchimpMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return mailchimpMetadata{}, fmt.Errorf("decoding response: %w", err)
	}

	if meta.DC == "" {
		return mailchimpMetadata{}, errors.New("metadata has no dc")
	}

	return meta, nil
}

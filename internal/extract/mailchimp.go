package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/connector-manager/internal/provider"
	"github.com/openkcm/connector-manager/internal/secretstore"
	"github.com/openkcm/connector-manager/internal/serviceerr"
	"github.com/openkcm/connector-manager/internal/sink"
)

const (
	DefaultPageSize = 100
	DefaultMaxPages = 50

	// maxErrorBody caps how much of a failed response is kept in the error.
	maxErrorBody = 4 << 10
)

var serverPrefix = regexp.MustCompile(`^[a-z]+[0-9]+$`)

// MailchimpCampaigns lists the campaigns of a Mailchimp account through the
// Marketing API of the account's data center.
type MailchimpCampaigns struct {
	Client *http.Client
	// BaseURL replaces https://<dc>.api.mailchimp.com/3.0 when set.
	BaseURL  string
	PageSize int
	MaxPages int
}

type campaignList struct {
	Campaigns  []sink.Record `json:"campaigns"`
	TotalItems int           `json:"total_items"`
}

func (m MailchimpCampaigns) List(ctx context.Context, bundle secretstore.TokenBundle) (Page, error) {
	base, err := m.baseURL(bundle)
	if err != nil {
		return Page{}, err
	}

	pageSize := m.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	maxPages := m.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	var page Page
	for offset := 0; page.Requests < maxPages; {
		list, err := m.fetch(ctx, base, bundle.AccessToken, pageSize, offset)
		page.Requests++
		if err != nil {
			return Page{}, err
		}

		page.Records = append(page.Records, list.Campaigns...)
		offset += len(list.Campaigns)

		if len(list.Campaigns) == 0 || offset >= list.TotalItems {
			return page, nil
		}
	}

	slogctx.Warn(ctx, "Stopped listing campaigns at the page limit", "max_pages", maxPages, "records", len(page.Records))

	return page, nil
}

func (m MailchimpCampaigns) baseURL(bundle secretstore.TokenBundle) (string, error) {
	if bundle.AccessToken == "" {
		return "", fmt.Errorf("%w: stored credential has no access token", serviceerr.ErrCredentialNotFound)
	}

	dc := bundle.ServerPrefix
	if dc == "" || dc == provider.ServerPrefixNotFound {
		return "", fmt.Errorf("%w: stored credential has no data center", serviceerr.ErrCredentialNotFound)
	}

	if m.BaseURL != "" {
		return strings.TrimSuffix(m.BaseURL, "/"), nil
	}

	if !serverPrefix.MatchString(dc) {
		return "", fmt.Errorf("%w: invalid data center %q", serviceerr.ErrCredentialNotFound, dc)
	}

	return "https://" + dc + ".api.mailchimp.com/3.0", nil
}

func (m MailchimpCampaigns) fetch(ctx context.Context, base, accessToken string, count, offset int) (campaignList, error) {
	q := url.Values{}
	q.Set("count", strconv.Itoa(count))
	q.Set("offset", strconv.Itoa(offset))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/campaigns?"+q.Encode(), nil)
	if err != nil {
		return campaignList{}, fmt.Errorf("creating campaigns request: %w", err)
	}
	req.Header.Set("Authorization", "OAuth "+accessToken)
	req.Header.Set("Accept", "application/json")

	client := m.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return campaignList{}, fmt.Errorf("listing campaigns: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return campaignList{}, serviceerr.UpstreamAPIError(resp.StatusCode, string(body))
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()

	var list campaignList
	if err := dec.Decode(&list); err != nil {
		return campaignList{}, fmt.Errorf("decoding campaigns: %w", err)
	}

	return list, nil
}

package cosmos

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-cleanhttp"
)

// Account is the on-chain signing state of an address
type Account struct {
	AccountNumber uint64
	Sequence      uint64
}

// LCDClient reads account state from a Cosmos SDK REST (LCD) endpoint
type LCDClient struct {
	baseURL string
	client  *http.Client
}

// NewLCDClient creates a client for baseURL
func NewLCDClient(baseURL string) *LCDClient {
	return &LCDClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  cleanhttp.DefaultPooledClient(),
	}
}

type accountResponse struct {
	Account struct {
		Type          string `json:"@type"`
		Address       string `json:"address"`
		AccountNumber uint64 `json:"account_number,string"`
		Sequence      uint64 `json:"sequence,string"`
	} `json:"account"`
}

// Account fetches account number and sequence for address
func (c *LCDClient) Account(ctx context.Context, address string) (*Account, error) {
	endpoint := c.baseURL + "/cosmos/auth/v1beta1/accounts/" + url.PathEscape(address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("account query failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read account response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("account query returned status %d", resp.StatusCode)
	}

	var out accountResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode account response: %w", err)
	}
	return &Account{AccountNumber: out.Account.AccountNumber, Sequence: out.Account.Sequence}, nil
}

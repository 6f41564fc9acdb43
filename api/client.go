package api

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	ethCommon "github.com/ethereum/go-ethereum/common"
)

// ResponseError is a non-2xx reply of the API.
type ResponseError struct {
	StatusCode int
	Msg        string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Msg)
}

// Client calls a router API, signing mutating requests with its key.
type Client struct {
	baseURL *url.URL
	key     *ecdsa.PrivateKey
	http    *http.Client
}

// NewClient creates a client for the API at baseURL, e.g.
// "http://localhost:8008". key may be nil for read-only use.
func NewClient(baseURL string, key *ecdsa.PrivateKey, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: u, key: key, http: httpClient}, nil
}

// Status fetches the router status.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var status Status
	return &status, c.do(ctx, http.MethodGet, "/v1/status", nil, &status)
}

// Stack fetches a vault's withdrawal stack.
func (c *Client) Stack(ctx context.Context, vault ethCommon.Address) (*WithdrawalStack, error) {
	var stack WithdrawalStack
	return &stack, c.do(ctx, http.MethodGet, stackPath(vault), nil, &stack)
}

// StackLength fetches the length of a vault's withdrawal stack.
func (c *Client) StackLength(ctx context.Context, vault ethCommon.Address) (int, error) {
	var length StackLength
	err := c.do(ctx, http.MethodGet, stackPath(vault)+"/length", nil, &length)
	return length.Length, err
}

// AddStrategy appends strategy to the vault's withdrawal stack.
func (c *Client) AddStrategy(ctx context.Context, vault, strategy ethCommon.Address) (*WithdrawalStack, error) {
	var stack WithdrawalStack
	req := AddStrategyRequest{Strategy: strategy.Hex()}
	return &stack, c.do(ctx, http.MethodPost, stackPath(vault), req, &stack)
}

// RemoveStrategy removes strategy from the vault's withdrawal stack.
func (c *Client) RemoveStrategy(ctx context.Context, vault, strategy ethCommon.Address) (*WithdrawalStack, error) {
	var stack WithdrawalStack
	return &stack, c.do(ctx, http.MethodDelete, stackPath(vault)+"/"+strategy.Hex(), nil, &stack)
}

// SetStack replaces the vault's withdrawal stack.
func (c *Client) SetStack(ctx context.Context, vault ethCommon.Address, strategies []ethCommon.Address) (*WithdrawalStack, error) {
	req := SetStackRequest{Strategies: make([]string, 0, len(strategies))}
	for _, strategy := range strategies {
		req.Strategies = append(req.Strategies, strategy.Hex())
	}
	var stack WithdrawalStack
	return &stack, c.do(ctx, http.MethodPut, stackPath(vault), req, &stack)
}

// ReplaceStackIndex puts strategy at position index of the vault's stack.
func (c *Client) ReplaceStackIndex(ctx context.Context, vault ethCommon.Address, index int, strategy ethCommon.Address) (*WithdrawalStack, error) {
	var stack WithdrawalStack
	req := AddStrategyRequest{Strategy: strategy.Hex()}
	return &stack, c.do(ctx, http.MethodPut, stackPath(vault)+"/"+strconv.Itoa(index), req, &stack)
}

// NominateGovernance nominates a new governance.
func (c *Client) NominateGovernance(ctx context.Context, nominee ethCommon.Address) (*Status, error) {
	var status Status
	req := NominateRequest{Nominee: nominee.Hex()}
	return &status, c.do(ctx, http.MethodPost, "/v1/governance/nominate", req, &status)
}

// AcceptGovernance accepts a pending nomination of the client's key.
func (c *Client) AcceptGovernance(ctx context.Context) (*Status, error) {
	var status Status
	return &status, c.do(ctx, http.MethodPost, "/v1/governance/accept", nil, &status)
}

func stackPath(vault ethCommon.Address) string {
	return "/v1/vaults/" + vault.Hex() + "/stack"
}

func (c *Client) do(ctx context.Context, method, path string, reqBody, respBody interface{}) error {
	var body []byte
	if reqBody != nil {
		var err error
		if body, err = json.Marshal(reqBody); err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	u := *c.baseURL
	u.Path += path
	req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("content-type", "application/json")
	}
	if method != http.MethodGet {
		if c.key == nil {
			return fmt.Errorf("%s %s needs a signing key", method, path)
		}
		sig, err2 := SignRequest(c.key, method, u.Path, body)
		if err2 != nil {
			return fmt.Errorf("sign request: %w", err2)
		}
		req.Header.Set(SignatureHeader, sig)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr HumanReadableError
		if err = json.Unmarshal(raw, &apiErr); err != nil || apiErr.Msg == "" {
			apiErr.Msg = strings.TrimSpace(string(raw))
		}
		return &ResponseError{StatusCode: resp.StatusCode, Msg: apiErr.Msg}
	}
	if err = json.Unmarshal(raw, respBody); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

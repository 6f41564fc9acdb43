package api_test

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/yearn/stack-router/api"
	"github.com/yearn/stack-router/log"
	"github.com/yearn/stack-router/router"
	"github.com/yearn/stack-router/vault/static"
)

var testVault = ethCommon.HexToAddress("0x00000000000000000000000000000000000000a1")

type testServer struct {
	server   *httptest.Server
	registry *static.Registry
	govKey   *ecdsa.PrivateKey
	gov      *api.Client
	next     int64
}

func newKey(t *testing.T) *ecdsa.PrivateKey {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}

func newTestServer(t *testing.T) *testServer {
	govKey := newKey(t)
	registry := static.NewRegistry()
	r, err := router.New(
		context.Background(),
		"YearnV3 Router 0.0.1",
		crypto.PubkeyToAddress(govKey.PublicKey),
		router.NewMemoryStore(),
		registry,
		log.NewDefaultLogger("unit-test"),
	)
	require.NoError(t, err)

	server := httptest.NewServer(api.NewRouterAPI(r, api.Options{}, log.NewDefaultLogger("unit-test")))
	t.Cleanup(server.Close)

	ts := &testServer{server: server, registry: registry, govKey: govKey}
	ts.gov = ts.client(t, govKey)
	return ts
}

func (ts *testServer) client(t *testing.T, key *ecdsa.PrivateKey) *api.Client {
	c, err := api.NewClient(ts.server.URL, key, ts.server.Client())
	require.NoError(t, err)
	return c
}

func (ts *testServer) activeStrategy() ethCommon.Address {
	ts.next++
	s := ethCommon.BigToAddress(big.NewInt(0x1000 + ts.next))
	ts.registry.AddStrategy(testVault, s)
	return s
}

// do sends a raw request, signed with key unless key is nil.
func (ts *testServer) do(t *testing.T, key *ecdsa.PrivateKey, method, path, body string) *http.Response {
	req, err := http.NewRequest(method, ts.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if key != nil {
		sig, err := api.SignRequest(key, method, path, []byte(body))
		require.NoError(t, err)
		req.Header.Set(api.SignatureHeader, sig)
	}
	resp, err := ts.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func requireStatus(t *testing.T, err error, code int) {
	t.Helper()
	var respErr *api.ResponseError
	require.ErrorAs(t, err, &respErr)
	require.Equal(t, code, respErr.StatusCode, respErr.Msg)
}

func addresses(accts []api.Account) []string {
	out := make([]string, 0, len(accts))
	for _, a := range accts {
		out = append(out, a.Address)
	}
	return out
}

func hexes(addrs ...ethCommon.Address) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.Hex())
	}
	return out
}

func TestStatus(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	status, err := ts.gov.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, "YearnV3 Router 0.0.1", status.Name)
	require.Equal(t, crypto.PubkeyToAddress(ts.govKey.PublicKey).Hex(), status.Governance.Address)
	require.True(t, strings.HasPrefix(status.Governance.OasisAddress, "oasis1"), status.Governance.OasisAddress)
	require.Nil(t, status.PendingGovernance)
	require.Equal(t, router.MaxStackSize, status.MaxStackSize)
}

func TestEmptyStack(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	stack, err := ts.gov.Stack(ctx, testVault)
	require.NoError(t, err)
	require.Equal(t, testVault.Hex(), stack.Vault.Address)
	require.Empty(t, stack.Strategies)
	require.Zero(t, stack.Length)

	// An empty stack renders as [], not null.
	resp := ts.do(t, nil, http.MethodGet, "/v1/vaults/"+testVault.Hex()+"/stack", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var raw map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	require.Equal(t, "[]", string(raw["strategies"]))
}

func TestStackLifecycle(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	a, b, c := ts.activeStrategy(), ts.activeStrategy(), ts.activeStrategy()

	for _, s := range []ethCommon.Address{a, b, c} {
		_, err := ts.gov.AddStrategy(ctx, testVault, s)
		require.NoError(t, err)
	}
	stack, err := ts.gov.Stack(ctx, testVault)
	require.NoError(t, err)
	require.Equal(t, hexes(a, b, c), addresses(stack.Strategies))
	require.Equal(t, 3, stack.Length)

	length, err := ts.gov.StackLength(ctx, testVault)
	require.NoError(t, err)
	require.Equal(t, 3, length)

	stack, err = ts.gov.RemoveStrategy(ctx, testVault, a)
	require.NoError(t, err)
	require.Equal(t, hexes(b, c), addresses(stack.Strategies))

	d := ts.activeStrategy()
	stack, err = ts.gov.ReplaceStackIndex(ctx, testVault, 1, d)
	require.NoError(t, err)
	require.Equal(t, hexes(b, d), addresses(stack.Strategies))

	stack, err = ts.gov.SetStack(ctx, testVault, []ethCommon.Address{d, c, b})
	require.NoError(t, err)
	require.Equal(t, hexes(d, c, b), addresses(stack.Strategies))

	stack, err = ts.gov.SetStack(ctx, testVault, []ethCommon.Address{})
	require.NoError(t, err)
	require.Empty(t, stack.Strategies)
}

func TestSignatureRequired(t *testing.T) {
	ts := newTestServer(t)
	body := `{"strategy":"` + ts.activeStrategy().Hex() + `"}`
	path := "/v1/vaults/" + testVault.Hex() + "/stack"

	resp := ts.do(t, nil, http.MethodPost, path, body)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	var herr api.HumanReadableError
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&herr))
	require.Contains(t, herr.Msg, api.SignatureHeader)

	for _, sig := range []string{"0x1234", "not-hex", "0x" + strings.Repeat("00", 65)} {
		req, err := http.NewRequest(http.MethodPost, ts.server.URL+path, strings.NewReader(body))
		require.NoError(t, err)
		req.Header.Set(api.SignatureHeader, sig)
		resp, err := ts.server.Client().Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode, sig)
	}

	length, err := ts.gov.StackLength(context.Background(), testVault)
	require.NoError(t, err)
	require.Zero(t, length)
}

func TestNonGovernanceForbidden(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	user := ts.client(t, newKey(t))

	_, err := user.AddStrategy(ctx, testVault, ts.activeStrategy())
	requireStatus(t, err, http.StatusForbidden)
	_, err = user.SetStack(ctx, testVault, []ethCommon.Address{ts.activeStrategy()})
	requireStatus(t, err, http.StatusForbidden)
	_, err = user.NominateGovernance(ctx, crypto.PubkeyToAddress(ts.govKey.PublicKey))
	requireStatus(t, err, http.StatusForbidden)
}

func TestSignatureCoversRequest(t *testing.T) {
	ts := newTestServer(t)
	strategy := ts.activeStrategy()
	path := "/v1/vaults/" + testVault.Hex() + "/stack"
	body := `{"strategy":"` + strategy.Hex() + `"}`

	// Governance signed a different body; the signature recovers to some
	// other address.
	sig, err := api.SignRequest(ts.govKey, http.MethodPost, path, []byte(`{"strategy":"`+ts.activeStrategy().Hex()+`"}`))
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, ts.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set(api.SignatureHeader, sig)
	resp, err := ts.server.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

// Signatures are not bound to a nonce or expiry: resending a captured
// request applies it again.
func TestSignedRequestReplays(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	strategy := ts.activeStrategy()
	path := "/v1/vaults/" + testVault.Hex() + "/stack"
	body := `{"strategies":["` + strategy.Hex() + `"]}`
	sig, err := api.SignRequest(ts.govKey, http.MethodPut, path, []byte(body))
	require.NoError(t, err)

	send := func() int {
		req, err := http.NewRequest(http.MethodPut, ts.server.URL+path, strings.NewReader(body))
		require.NoError(t, err)
		req.Header.Set(api.SignatureHeader, sig)
		resp, err := ts.server.Client().Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	require.Equal(t, http.StatusOK, send())
	_, err = ts.gov.SetStack(ctx, testVault, nil)
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, send())
	length, err := ts.gov.StackLength(ctx, testVault)
	require.NoError(t, err)
	require.Equal(t, 1, length)
}

func TestRejectionStatusCodes(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	inactive := ethCommon.HexToAddress("0x00000000000000000000000000000000000000e1")

	_, err := ts.gov.AddStrategy(ctx, testVault, inactive)
	requireStatus(t, err, http.StatusConflict)

	var full []ethCommon.Address
	for i := 0; i < router.MaxStackSize; i++ {
		full = append(full, ts.activeStrategy())
	}
	_, err = ts.gov.SetStack(ctx, testVault, full)
	require.NoError(t, err)

	_, err = ts.gov.AddStrategy(ctx, testVault, ts.activeStrategy())
	requireStatus(t, err, http.StatusConflict)
	_, err = ts.gov.SetStack(ctx, testVault, append(full, ts.activeStrategy()))
	requireStatus(t, err, http.StatusUnprocessableEntity)
	_, err = ts.gov.ReplaceStackIndex(ctx, testVault, 3, full[3])
	requireStatus(t, err, http.StatusConflict)
	_, err = ts.gov.ReplaceStackIndex(ctx, testVault, 3, full[4])
	requireStatus(t, err, http.StatusConflict)
	_, err = ts.gov.ReplaceStackIndex(ctx, testVault, router.MaxStackSize, ts.activeStrategy())
	requireStatus(t, err, http.StatusUnprocessableEntity)
	_, err = ts.gov.RemoveStrategy(ctx, testVault, inactive)
	requireStatus(t, err, http.StatusNotFound)

	stack, err := ts.gov.Stack(ctx, testVault)
	require.NoError(t, err)
	require.Equal(t, hexes(full...), addresses(stack.Strategies))
}

func TestBadRequests(t *testing.T) {
	ts := newTestServer(t)
	stackPath := "/v1/vaults/" + testVault.Hex() + "/stack"

	for _, tc := range []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"truncated body", http.MethodPost, stackPath, `{"strategy":`},
		{"unknown field", http.MethodPost, stackPath, `{"strategy":"` + testVault.Hex() + `","extra":1}`},
		{"bad strategy", http.MethodPost, stackPath, `{"strategy":"0x1234"}`},
		{"bad vault", http.MethodPost, "/v1/vaults/nope/stack", `{"strategy":"` + testVault.Hex() + `"}`},
		{"missing strategies", http.MethodPut, stackPath, `{}`},
		{"bad index", http.MethodPut, stackPath + "/one", `{"strategy":"` + testVault.Hex() + `"}`},
		{"bad nominee", http.MethodPost, "/v1/governance/nominate", `{"nominee":"gov"}`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			resp := ts.do(t, ts.govKey, tc.method, tc.path, tc.body)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestUnknownEndpoint(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, nil, http.MethodGet, "/v1/nothing-here", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "application/json; charset=utf-8", resp.Header.Get("content-type"))
}

func TestGovernanceHandshake(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	nextKey := newKey(t)
	nextGov := crypto.PubkeyToAddress(nextKey.PublicKey)
	next := ts.client(t, nextKey)

	// Accepting without a nomination fails.
	_, err := next.AcceptGovernance(ctx)
	requireStatus(t, err, http.StatusForbidden)

	status, err := ts.gov.NominateGovernance(ctx, nextGov)
	require.NoError(t, err)
	require.NotNil(t, status.PendingGovernance)
	require.Equal(t, nextGov.Hex(), status.PendingGovernance.Address)
	require.Equal(t, crypto.PubkeyToAddress(ts.govKey.PublicKey).Hex(), status.Governance.Address)

	// The nominee has no authority until accepting.
	_, err = next.AddStrategy(ctx, testVault, ts.activeStrategy())
	requireStatus(t, err, http.StatusForbidden)

	status, err = next.AcceptGovernance(ctx)
	require.NoError(t, err)
	require.Equal(t, nextGov.Hex(), status.Governance.Address)
	require.Nil(t, status.PendingGovernance)

	_, err = ts.gov.AddStrategy(ctx, testVault, ts.activeStrategy())
	requireStatus(t, err, http.StatusForbidden)
	_, err = next.AddStrategy(ctx, testVault, ts.activeStrategy())
	require.NoError(t, err)
}

func TestRecoverCaller(t *testing.T) {
	key := newKey(t)
	want := crypto.PubkeyToAddress(key.PublicKey)
	body := []byte(`{"nominee":"0x00000000000000000000000000000000000000f1"}`)

	sig, err := api.SignRequest(key, http.MethodPost, "/v1/governance/nominate", body)
	require.NoError(t, err)
	got, err := api.RecoverCaller(http.MethodPost, "/v1/governance/nominate", body, sig)
	require.NoError(t, err)
	require.Equal(t, want, got)

	// Raw 0/1 recovery ids are accepted too.
	raw, err := crypto.Sign(accounts.TextHash(api.SigningMessage(http.MethodPost, "/v1/governance/nominate", body)), key)
	require.NoError(t, err)
	got, err = api.RecoverCaller(http.MethodPost, "/v1/governance/nominate", body, hexutil.Encode(raw))
	require.NoError(t, err)
	require.Equal(t, want, got)

	got, err = api.RecoverCaller(http.MethodPost, "/v1/governance/accept", body, sig)
	require.NoError(t, err)
	require.NotEqual(t, want, got)

	_, err = api.RecoverCaller(http.MethodPost, "/", nil, "")
	require.ErrorIs(t, err, api.ErrMissingSignature)
	_, err = api.RecoverCaller(http.MethodPost, "/", nil, "0x00")
	require.ErrorIs(t, err, api.ErrBadSignature)
}

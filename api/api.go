// Package api defines the HTTP API of the withdrawal stack router.
//
// Mutating requests are authenticated by a signature over the method, path
// and body only. Signatures carry no nonce or expiry, so anyone who observes
// a signed request can replay it. Serve the API over TLS to trusted clients.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	ethCommon "github.com/ethereum/go-ethereum/common"

	"github.com/yearn/stack-router/common"
	"github.com/yearn/stack-router/log"
	"github.com/yearn/stack-router/metrics"
	"github.com/yearn/stack-router/router"
)

const (
	moduleName = "api"
)

// Options tune the HTTP surface.
type Options struct {
	// RequestTimeout bounds each request. Zero means no bound.
	RequestTimeout time.Duration
	// CORSAllowedOrigins lists the allowed browser origins; empty allows all.
	CORSAllowedOrigins []string
}

// RouterAPI serves a router.Router over HTTP.
type RouterAPI struct {
	router *router.Router
	mux    *chi.Mux
	logger *log.Logger
}

// NewRouterAPI creates a new API for r.
func NewRouterAPI(r *router.Router, opts Options, l *log.Logger) *RouterAPI {
	logger := l.WithModule(moduleName)
	a := &RouterAPI{
		router: r,
		mux:    chi.NewRouter(),
		logger: logger,
	}

	a.mux.Use(MetricsMiddleware(metrics.NewDefaultRequestMetrics(moduleName), logger))
	a.mux.Use(CorsMiddleware(opts.CORSAllowedOrigins))
	a.mux.Use(middleware.Recoverer)
	if opts.RequestTimeout > 0 {
		a.mux.Use(middleware.Timeout(opts.RequestTimeout))
	}

	a.mux.Route("/v1", func(v1 chi.Router) {
		v1.Get("/status", a.GetStatus)
		v1.Route("/vaults/{vault}/stack", func(s chi.Router) {
			s.Get("/", a.GetStack)
			s.Get("/length", a.GetStackLength)
			s.Group(func(signed chi.Router) {
				signed.Use(SignatureMiddleware)
				signed.Post("/", a.AddStrategy)
				signed.Put("/", a.SetStack)
				signed.Put("/{index}", a.ReplaceStackIndex)
				signed.Delete("/{strategy}", a.RemoveStrategy)
			})
		})
		v1.Route("/governance", func(g chi.Router) {
			g.Use(SignatureMiddleware)
			g.Post("/nominate", a.NominateGovernance)
			g.Post("/accept", a.AcceptGovernance)
		})
	})
	a.mux.NotFound(func(w http.ResponseWriter, r *http.Request) {
		HumanReadableJsonErrorHandler(w, r, fmt.Errorf("%w: %s %s", ErrNotFound, r.Method, r.URL.Path))
	})

	return a
}

// ServeHTTP implements http.Handler.
func (a *RouterAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}

// GetStatus describes the router and its governance.
func (a *RouterAPI) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := a.status(r.Context())
	if err != nil {
		a.logAndReply(w, r, "failed to get status", err)
		return
	}
	a.reply(w, r, status)
}

// GetStack returns a vault's withdrawal stack.
func (a *RouterAPI) GetStack(w http.ResponseWriter, r *http.Request) {
	vault, err := addressParam(r, "vault")
	if err != nil {
		a.logAndReply(w, r, "bad vault", err)
		return
	}
	stack, err := a.stack(r.Context(), vault)
	if err != nil {
		a.logAndReply(w, r, "failed to get stack", err)
		return
	}
	a.reply(w, r, stack)
}

// GetStackLength returns the length of a vault's withdrawal stack.
func (a *RouterAPI) GetStackLength(w http.ResponseWriter, r *http.Request) {
	vault, err := addressParam(r, "vault")
	if err != nil {
		a.logAndReply(w, r, "bad vault", err)
		return
	}
	length, err := a.router.WithdrawalStackLength(r.Context(), vault)
	if err != nil {
		a.logAndReply(w, r, "failed to get stack length", err)
		return
	}
	a.reply(w, r, StackLength{Vault: vault.Hex(), Length: length})
}

// AddStrategy appends a strategy to a vault's withdrawal stack.
func (a *RouterAPI) AddStrategy(w http.ResponseWriter, r *http.Request) {
	a.mutateStack(w, r, func(ctx context.Context, caller, vault ethCommon.Address) error {
		var req AddStrategyRequest
		if err := decodeBody(r, &req); err != nil {
			return err
		}
		strategy, err := parseAddress("strategy", req.Strategy)
		if err != nil {
			return err
		}
		return a.router.AddStrategy(ctx, caller, vault, strategy)
	})
}

// SetStack replaces a vault's whole withdrawal stack.
func (a *RouterAPI) SetStack(w http.ResponseWriter, r *http.Request) {
	a.mutateStack(w, r, func(ctx context.Context, caller, vault ethCommon.Address) error {
		var req SetStackRequest
		if err := decodeBody(r, &req); err != nil {
			return err
		}
		if req.Strategies == nil {
			return fmt.Errorf("%w: strategies is required; send [] to clear the stack", ErrBadRequest)
		}
		stack, err := common.ParseEthAddresses(req.Strategies)
		if err != nil {
			return fmt.Errorf("%w: strategies: %s", ErrBadRequest, err)
		}
		return a.router.SetWithdrawalStack(ctx, caller, vault, stack)
	})
}

// ReplaceStackIndex replaces the strategy at one position of a vault's stack.
func (a *RouterAPI) ReplaceStackIndex(w http.ResponseWriter, r *http.Request) {
	a.mutateStack(w, r, func(ctx context.Context, caller, vault ethCommon.Address) error {
		index, err := strconv.Atoi(chi.URLParam(r, "index"))
		if err != nil {
			return fmt.Errorf("%w: index: %s", ErrBadRequest, err)
		}
		var req AddStrategyRequest
		if err = decodeBody(r, &req); err != nil {
			return err
		}
		strategy, err := parseAddress("strategy", req.Strategy)
		if err != nil {
			return err
		}
		return a.router.ReplaceWithdrawalStackIndex(ctx, caller, vault, index, strategy)
	})
}

// RemoveStrategy removes a strategy from a vault's withdrawal stack.
func (a *RouterAPI) RemoveStrategy(w http.ResponseWriter, r *http.Request) {
	a.mutateStack(w, r, func(ctx context.Context, caller, vault ethCommon.Address) error {
		strategy, err := addressParam(r, "strategy")
		if err != nil {
			return err
		}
		return a.router.RemoveStrategy(ctx, caller, vault, strategy)
	})
}

// NominateGovernance starts a governance transfer.
func (a *RouterAPI) NominateGovernance(w http.ResponseWriter, r *http.Request) {
	a.mutateGovernance(w, r, func(ctx context.Context, caller ethCommon.Address) error {
		var req NominateRequest
		if err := decodeBody(r, &req); err != nil {
			return err
		}
		nominee, err := parseAddress("nominee", req.Nominee)
		if err != nil {
			return err
		}
		return a.router.SetGovernance(ctx, caller, nominee)
	})
}

// AcceptGovernance completes a governance transfer.
func (a *RouterAPI) AcceptGovernance(w http.ResponseWriter, r *http.Request) {
	a.mutateGovernance(w, r, func(ctx context.Context, caller ethCommon.Address) error {
		return a.router.AcceptGovernance(ctx, caller)
	})
}

func (a *RouterAPI) mutateStack(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, caller, vault ethCommon.Address) error) {
	ctx := r.Context()
	caller, ok := CallerFromContext(ctx)
	if !ok {
		a.logAndReply(w, r, "unsigned request", ErrMissingSignature)
		return
	}
	vault, err := addressParam(r, "vault")
	if err != nil {
		a.logAndReply(w, r, "bad vault", err)
		return
	}
	if err = op(ctx, caller, vault); err != nil {
		a.logAndReply(w, r, "stack operation failed", err)
		return
	}
	stack, err := a.stack(ctx, vault)
	if err != nil {
		a.logAndReply(w, r, "failed to get stack", err)
		return
	}
	a.reply(w, r, stack)
}

func (a *RouterAPI) mutateGovernance(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, caller ethCommon.Address) error) {
	ctx := r.Context()
	caller, ok := CallerFromContext(ctx)
	if !ok {
		a.logAndReply(w, r, "unsigned request", ErrMissingSignature)
		return
	}
	if err := op(ctx, caller); err != nil {
		a.logAndReply(w, r, "governance operation failed", err)
		return
	}
	status, err := a.status(ctx)
	if err != nil {
		a.logAndReply(w, r, "failed to get status", err)
		return
	}
	a.reply(w, r, status)
}

func (a *RouterAPI) status(ctx context.Context) (*Status, error) {
	auth, err := a.router.Authority(ctx)
	if err != nil {
		return nil, err
	}
	gov, err := newAccount(auth.Governance)
	if err != nil {
		return nil, err
	}
	status := &Status{
		Name:         a.router.Name(),
		Governance:   gov,
		MaxStackSize: router.MaxStackSize,
	}
	if auth.PendingGovernance != common.ZeroAddress {
		pending, err := newAccount(auth.PendingGovernance)
		if err != nil {
			return nil, err
		}
		status.PendingGovernance = &pending
	}
	return status, nil
}

func (a *RouterAPI) stack(ctx context.Context, vault ethCommon.Address) (*WithdrawalStack, error) {
	strategies, err := a.router.VaultWithdrawalStack(ctx, vault)
	if err != nil {
		return nil, err
	}
	vaultAccount, err := newAccount(vault)
	if err != nil {
		return nil, err
	}
	stack := &WithdrawalStack{
		Vault:      vaultAccount,
		Strategies: make([]Account, 0, len(strategies)),
		Length:     len(strategies),
	}
	for _, strategy := range strategies {
		account, err := newAccount(strategy)
		if err != nil {
			return nil, err
		}
		stack.Strategies = append(stack.Strategies, account)
	}
	return stack, nil
}

func (a *RouterAPI) reply(w http.ResponseWriter, r *http.Request, v interface{}) {
	resp, err := json.Marshal(v)
	if err != nil {
		a.logAndReply(w, r, "failed to marshal response", err)
		return
	}
	w.Header().Set("content-type", "application/json")
	if _, err = w.Write(resp); err != nil {
		a.logger.Error("failed to write response",
			"request_id", r.Context().Value(common.RequestIDContextKey),
			"error", err,
		)
	}
}

func (a *RouterAPI) logAndReply(w http.ResponseWriter, r *http.Request, msg string, err error) {
	logFunc := a.logger.Info
	if HttpCodeForError(err) >= http.StatusInternalServerError {
		logFunc = a.logger.Error
	}
	logFunc(msg,
		"request_id", r.Context().Value(common.RequestIDContextKey),
		"error", err,
	)
	HumanReadableJsonErrorHandler(w, r, err)
}

func parseAddress(name, s string) (ethCommon.Address, error) {
	addr, err := common.ParseEthAddress(s)
	if err != nil {
		return common.ZeroAddress, fmt.Errorf("%w: %s: %s", ErrBadRequest, name, err)
	}
	return addr, nil
}

func addressParam(r *http.Request, name string) (ethCommon.Address, error) {
	return parseAddress(name, chi.URLParam(r, name))
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: body: %s", ErrBadRequest, err)
	}
	return nil
}

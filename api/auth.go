package api

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"fmt"
	"io"
	"net/http"

	"github.com/ethereum/go-ethereum/accounts"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/yearn/stack-router/common"
)

// SignatureHeader carries the caller's EIP-191 signature of the request.
// The signed message has no nonce or expiry, so a captured request can be
// replayed verbatim; see SigningMessage.
const SignatureHeader = "X-Router-Signature"

// maxBodyBytes bounds the body of signed requests.
const maxBodyBytes = 64 << 10

// SigningMessage returns the bytes a caller signs to authenticate a request:
// the method, a space, the URL path, a newline, and the raw body.
func SigningMessage(method, path string, body []byte) []byte {
	msg := make([]byte, 0, len(method)+len(path)+len(body)+2)
	msg = append(msg, method...)
	msg = append(msg, ' ')
	msg = append(msg, path...)
	msg = append(msg, '\n')
	return append(msg, body...)
}

// SignRequest signs a request with key, returning the header value. The
// recovery id is encoded as 27/28, matching what wallets produce for
// personal_sign.
func SignRequest(key *ecdsa.PrivateKey, method, path string, body []byte) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash(SigningMessage(method, path, body)), key)
	if err != nil {
		return "", err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// RecoverCaller returns the address that produced signature over the
// request. Recovery ids 0/1 and 27/28 are both accepted.
func RecoverCaller(method, path string, body []byte, signature string) (ethCommon.Address, error) {
	if signature == "" {
		return common.ZeroAddress, ErrMissingSignature
	}
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.ZeroAddress, fmt.Errorf("%w: %s", ErrBadSignature, err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.ZeroAddress, fmt.Errorf("%w: want %d bytes, got %d", ErrBadSignature, crypto.SignatureLength, len(sig))
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash(SigningMessage(method, path, body)), sig)
	if err != nil {
		return common.ZeroAddress, fmt.Errorf("%w: %s", ErrBadSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// CallerFromContext returns the authenticated caller of a signed request.
func CallerFromContext(ctx context.Context) (ethCommon.Address, bool) {
	caller, ok := ctx.Value(common.CallerContextKey).(ethCommon.Address)
	return caller, ok
}

// SignatureMiddleware authenticates requests by their SignatureHeader and
// stores the recovered caller in the request context. The body is read in
// full and handed on unchanged.
func SignatureMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			HumanReadableJsonErrorHandler(w, r, fmt.Errorf("%w: reading body: %s", ErrBadRequest, err))
			return
		}
		caller, err := RecoverCaller(r.Method, r.URL.Path, body, r.Header.Get(SignatureHeader))
		if err != nil {
			HumanReadableJsonErrorHandler(w, r, err)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r.WithContext(
			context.WithValue(r.Context(), common.CallerContextKey, caller),
		))
	})
}

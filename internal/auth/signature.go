package auth

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/crypto/hash"
	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/atmx/adledger/internal/model"
)

// Headers carrying a signed request.
const (
	HeaderPublicKey = "X-Public-Key"
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Timestamp"
)

// maxBodySize bounds the body read for signature verification.
const maxBodySize = 1 << 20

// SignatureAuthenticator verifies an ECDSA (secp256r1) signature over the
// request, the way a wallet signs a transaction. The caller address is the
// script hash of the presented public key.
//
// Each signed message is accepted once. It is remembered until its timestamp
// leaves the MaxSkew window, after which the timestamp check rejects it. A
// client repeating an identical request must wait for the next second.
type SignatureAuthenticator struct {
	// MaxSkew bounds how far X-Timestamp may be from now.
	MaxSkew time.Duration

	now func() time.Time

	mu        sync.Mutex
	seen      map[util.Uint256]time.Time
	nextSweep time.Time
}

// NewSignatureAuthenticator creates a verifier accepting timestamps within
// maxSkew of the local clock.
func NewSignatureAuthenticator(maxSkew time.Duration) *SignatureAuthenticator {
	return &SignatureAuthenticator{MaxSkew: maxSkew, now: time.Now}
}

// remember records a verified message and reports whether it was new.
func (a *SignatureAuthenticator) remember(key util.Uint256, ts int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	if a.seen == nil {
		a.seen = make(map[util.Uint256]time.Time)
	}
	if now.After(a.nextSweep) {
		for k, exp := range a.seen {
			if now.After(exp) {
				delete(a.seen, k)
			}
		}
		a.nextSweep = now.Add(a.MaxSkew)
	}
	if _, dup := a.seen[key]; dup {
		return false
	}
	a.seen[key] = time.Unix(ts, 0).Add(a.MaxSkew)
	return true
}

// SigningMessage is the exact byte string a client signs.
func SigningMessage(method, path string, timestamp int64, body []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(method)
	buf.WriteByte('\n')
	buf.WriteString(path)
	buf.WriteByte('\n')
	buf.WriteString(strconv.FormatInt(timestamp, 10))
	buf.WriteByte('\n')
	buf.Write(body)
	return buf.Bytes()
}

func (a *SignatureAuthenticator) Authenticate(r *http.Request) (model.Address, error) {
	pubHex := r.Header.Get(HeaderPublicKey)
	sigHex := r.Header.Get(HeaderSignature)
	if pubHex == "" && sigHex == "" {
		return model.ZeroAddress, ErrNoCredentials
	}

	pub, err := keys.NewPublicKeyFromString(pubHex)
	if err != nil {
		return model.ZeroAddress, fmt.Errorf("%w: public key: %v", ErrBadCredentials, err)
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return model.ZeroAddress, fmt.Errorf("%w: signature encoding: %v", ErrBadCredentials, err)
	}
	ts, err := strconv.ParseInt(r.Header.Get(HeaderTimestamp), 10, 64)
	if err != nil {
		return model.ZeroAddress, fmt.Errorf("%w: timestamp: %v", ErrBadCredentials, err)
	}
	if skew := a.now().Sub(time.Unix(ts, 0)); skew > a.MaxSkew || -skew > a.MaxSkew {
		return model.ZeroAddress, fmt.Errorf("%w: timestamp outside allowed window", ErrBadCredentials)
	}

	var body []byte
	if r.Body != nil {
		body, err = io.ReadAll(io.LimitReader(r.Body, maxBodySize))
		if err != nil {
			return model.ZeroAddress, fmt.Errorf("%w: read body: %v", ErrBadCredentials, err)
		}
		r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))
	}

	digest := hash.Sha256(SigningMessage(r.Method, r.URL.Path, ts, body))
	if !pub.Verify(sig, digest.BytesBE()) {
		return model.ZeroAddress, fmt.Errorf("%w: signature mismatch", ErrBadCredentials)
	}
	// Keyed on key and message, not signature bytes, so a re-encoded
	// signature over the same message is still a replay.
	if !a.remember(hash.Sha256(append(pub.Bytes(), digest.BytesBE()...)), ts) {
		return model.ZeroAddress, fmt.Errorf("%w: request already seen", ErrBadCredentials)
	}
	return model.Address(pub.GetScriptHash()), nil
}

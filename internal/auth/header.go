package auth

import (
	"fmt"
	"net/http"

	"github.com/atmx/adledger/internal/model"
)

// HeaderCaller is the header read by HeaderAuthenticator.
const HeaderCaller = "X-Caller"

// HeaderAuthenticator trusts the X-Caller header as-is. Only for development
// and for deployments behind a gateway that already verified the caller.
type HeaderAuthenticator struct{}

func (HeaderAuthenticator) Authenticate(r *http.Request) (model.Address, error) {
	v := r.Header.Get(HeaderCaller)
	if v == "" {
		return model.ZeroAddress, ErrNoCredentials
	}
	addr, err := model.ParseAddress(v)
	if err != nil {
		return model.ZeroAddress, fmt.Errorf("%w: %v", ErrBadCredentials, err)
	}
	if addr.IsZero() {
		return model.ZeroAddress, fmt.Errorf("%w: zero address", ErrBadCredentials)
	}
	return addr, nil
}

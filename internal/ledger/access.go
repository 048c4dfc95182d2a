package ledger

import (
	"fmt"

	"github.com/atmx/adledger/internal/model"
)

// requireOwner fails unless caller is the owner.
func requireOwner(acc model.Access, caller model.Address) error {
	if caller != acc.Owner {
		return fmt.Errorf("%w: Ownable: caller is not the owner", ErrUnauthorized)
	}
	return nil
}

// requireTrustedService fails unless caller is the settlement authority.
func requireTrustedService(acc model.Access, caller model.Address) error {
	if caller != acc.TrustedService {
		return fmt.Errorf("%w: Only trusted service can call this function", ErrUnauthorized)
	}
	return nil
}

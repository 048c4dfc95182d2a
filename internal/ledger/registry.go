package ledger

import (
	"fmt"

	"github.com/atmx/adledger/internal/model"
)

func requireRegistered(st *model.State, id model.Address) error {
	if !st.Registered[id] {
		return fmt.Errorf("%w: Only registered users can call this function", ErrNotRegistered)
	}
	return nil
}

func checkRegister(st *model.State, id model.Address) error {
	if st.Registered[id] {
		return fmt.Errorf("%w: User already registered", ErrAlreadyRegistered)
	}
	return nil
}

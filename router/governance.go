package router

import (
	ethCommon "github.com/ethereum/go-ethereum/common"

	"github.com/yearn/stack-router/common"
)

// Authority is the router's governance state. It is a plain value; the
// transitions below return a new Authority and leave the receiver intact.
type Authority struct {
	// Governance may mutate withdrawal stacks and nominate a successor.
	Governance ethCommon.Address
	// PendingGovernance is the nominated successor, or the zero address.
	PendingGovernance ethCommon.Address
}

// Authorize checks that caller is the current governance.
func (a Authority) Authorize(caller ethCommon.Address) error {
	if caller != a.Governance {
		return ErrUnauthorized
	}
	return nil
}

// Nominate returns the authority with nominee as pending governance,
// replacing any earlier nomination. Nominating the zero address withdraws
// the nomination.
func (a Authority) Nominate(caller, nominee ethCommon.Address) (Authority, error) {
	if err := a.Authorize(caller); err != nil {
		return a, err
	}
	a.PendingGovernance = nominee
	return a, nil
}

// Accept hands governance to the pending nominee. Only the nominee may
// call it; in particular the current governance may not accept on the
// nominee's behalf.
func (a Authority) Accept(caller ethCommon.Address) (Authority, error) {
	if a.PendingGovernance == common.ZeroAddress || caller != a.PendingGovernance {
		return a, ErrUnauthorized
	}
	return Authority{
		Governance:        a.PendingGovernance,
		PendingGovernance: common.ZeroAddress,
	}, nil
}

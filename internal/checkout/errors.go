package checkout

import "errors"

var (
	ErrSubmitInProgress  = errors.New("order submission already in progress")
	ErrAlreadyConfirmed  = errors.New("order already confirmed")
	ErrIllegalTransition = errors.New("illegal checkout transition")
	ErrFlowActive        = errors.New("checkout already submitting for this user")
)

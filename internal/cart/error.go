package cart

import "errors"

var (
	// -- Authentication/Authorization --
	ErrUserNotAuthenticated = errors.New("user not authenticated")

	// -- Database & Operation Failures --
	ErrFailedRemoveCart = errors.New("failed to remove cart item")
)

package recovery

import "errors"

var ErrUnauthenticated = errors.New("login required to recover an order")

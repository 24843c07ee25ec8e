package sentinel

import "errors"

// Infrastructure facts returned (optionally wrapped) by stores and adapters.
// Services translate them into domain errors; handlers never see them directly.
//
//   - ErrNotFound: no record under the requested key
//   - ErrConflict: a unique constraint (user email) would be violated
//   - ErrInvalidState: caller asked for something the store cannot represent
//   - ErrUnavailable: backing service unreachable
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)

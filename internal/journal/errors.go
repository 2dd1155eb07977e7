package journal

import "errors"

// ErrInvalidKind is returned when an entry has an unknown kind.
var ErrInvalidKind = errors.New("journal: invalid entry kind")

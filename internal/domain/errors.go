// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"errors"

	"github.com/adiadia/tracker/internal/trackertime"
)

var ErrInvalidTimestamp = trackertime.ErrInvalidTimestamp
var ErrInvalidType = errors.New("invalid event type")
var ErrInvalidKey = errors.New("invalid state key")
var ErrEncoding = errors.New("value cannot be encoded as JSON")
var ErrDuplicateInstant = errors.New("instant already recorded")
var ErrNoAuthenticatedUser = errors.New("no authenticated user")
var ErrInvalidConfiguration = errors.New("invalid tracker configuration")

// Package domain holds the sentinel errors shared by the broker's domain
// packages. Callers match them with errors.Is.
package domain

import "errors"

// ErrValidation marks errors caused by invalid caller input. Wrapping
// errors prefix their message with "validation: ".
var ErrValidation = errors.New("validation")

package rpflow

import (
	"fmt"

	"github.com/hashicorp/vault/sdk/helper/base62"
)

// NewID generates a crypto-sourced alphanumeric id of the given length,
// suitable for a login state value.
func NewID(length int) (string, error) {
	const op = "rpflow.NewID"
	if length <= 0 {
		return "", fmt.Errorf("%s: length not greater than zero: %w", op, ErrInvalidParameter)
	}
	id, err := base62.Random(length)
	if err != nil {
		return "", fmt.Errorf("%s: unable to generate id: %w", op, ErrIDGeneratorFailed)
	}
	return id, nil
}

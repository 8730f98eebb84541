package attendance

import (
	"errors"

	"github.com/aura-learn/backend/internal/models"
)

func isNotFound(err error) bool {
	var e *models.Error
	return errors.Is(err, models.ErrNotFound) && !errors.As(err, &e)
}

// classNotFound gives a bare not-found from a store its client-facing message.
func classNotFound(err error) error {
	if isNotFound(err) {
		return models.NewError(models.ErrNotFound, "Live class not found")
	}
	return err
}

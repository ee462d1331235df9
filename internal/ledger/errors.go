package ledger

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/Clark-Hu/bookshelf/internal/apperr"
	"github.com/Clark-Hu/bookshelf/internal/domain"
)

// Sentinels for errors.Is. Returned errors carry the same code plus context.
var (
	ErrInvalidRating       = apperr.New(apperr.CodeInvalidRating, "ledger: rating out of range")
	ErrNotFound            = apperr.New(apperr.CodeNotFound, "ledger: rated item not found")
	ErrDuplicateRating     = apperr.New(apperr.CodeDuplicateRating, "ledger: rater already rated item")
	ErrConcurrencyConflict = apperr.New(apperr.CodeConcurrencyConflict, "ledger: concurrent update won")
	ErrPersistence         = apperr.New(apperr.CodePersistence, "ledger: record store failure")
)

func invalidRating(value float64) error {
	return apperr.WithMetadata(apperr.CodeInvalidRating,
		fmt.Sprintf("ledger: rating %v outside [%v,%v]", value, domain.MinRating, domain.MaxRating),
		map[string]string{
			"Value": strconv.FormatFloat(value, 'f', -1, 64),
			"Min":   strconv.FormatFloat(domain.MinRating, 'f', -1, 64),
			"Max":   strconv.FormatFloat(domain.MaxRating, 'f', -1, 64),
		})
}

func itemNotFound(itemID string, cause error) error {
	return &apperr.Error{
		Code:     apperr.CodeNotFound,
		Message:  fmt.Sprintf("ledger: item %q not found", itemID),
		Metadata: map[string]string{"ItemID": itemID},
		Cause:    cause,
	}
}

func duplicateRating(itemID, raterID string) error {
	return apperr.WithMetadata(apperr.CodeDuplicateRating,
		fmt.Sprintf("ledger: rater %q already rated item %q", raterID, itemID),
		map[string]string{"ItemID": itemID, "RaterID": raterID})
}

func concurrencyConflict(itemID string, attempts int, cause error) error {
	return &apperr.Error{
		Code:     apperr.CodeConcurrencyConflict,
		Message:  fmt.Sprintf("ledger: item %q still contended after %d attempts", itemID, attempts),
		Metadata: map[string]string{"ItemID": itemID, "Attempts": strconv.Itoa(attempts)},
		Cause:    cause,
	}
}

// storeError classifies a record store failure. Conflicts pass through
// untouched so the retry loop can see them.
func storeError(op, itemID string, err error) error {
	switch {
	case errors.Is(err, domain.ErrVersionConflict):
		return err
	case errors.Is(err, domain.ErrNotFound):
		return itemNotFound(itemID, err)
	default:
		return apperr.Wrap(apperr.CodePersistence, "ledger: "+op, err)
	}
}

package port

import (
	"context"

	"github.com/quarryos/pkgfetch/internal/domain"
)

// MetadataResolver maps a package name and variant to the content id and
// size of its meta object.
type MetadataResolver interface {
	// Resolve returns the meta object id and its size in bytes.
	// Errors: domain.ErrPackageNotFound, domain.ErrSizeTooLarge,
	// domain.ErrInvalidContentID (wrapped), or a
	// *domain.UnexpectedStatusError.
	Resolve(ctx context.Context, name, variant string) (domain.ContentID, uint64, error)
}

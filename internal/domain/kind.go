package domain

// ContentKind describes how a blob is installed into the local store.
type ContentKind int

const (
	// KindData is an ordinary content blob.
	KindData ContentKind = iota

	// KindPackage is a package meta object. Installing a blob as a package
	// fulfills any pending need for the same blob as data, so Package
	// dominates Data when fetch contexts are merged.
	KindPackage
)

// String returns the store subpath name for the kind.
func (k ContentKind) String() string {
	if k == KindPackage {
		return "pkg"
	}
	return "blob"
}

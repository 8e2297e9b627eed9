package domain

// FetchContext carries the per-content-id metadata for one fetch request.
// It is created by the installer, may be mutated only through TryMerge while
// the request is still queued, and is read-only once a transfer begins.
type FetchContext struct {
	Kind        ContentKind
	Mirrors     []MirrorDescriptor
	ExpectedLen *uint64
}

// TryMerge attempts to fold other into c in place so that a single transfer
// can satisfy both requests. It returns false, leaving c unmodified, when
// the contexts cannot be merged; the caller then queues other to run after
// c's transfer completes.
func (c *FetchContext) TryMerge(other FetchContext) bool {
	// Unmergeable if both carry different expected lengths. One of the two
	// transfers will fail with a length mismatch, but we can't know which
	// one here.
	var expectedLen *uint64
	switch {
	case c.ExpectedLen == nil:
		expectedLen = other.ExpectedLen
	case other.ExpectedLen == nil:
		expectedLen = c.ExpectedLen
	case *c.ExpectedLen == *other.ExpectedLen:
		expectedLen = c.ExpectedLen
	default:
		return false
	}

	// Mirror lists are never unioned: merging only happens when both
	// requests asked for exactly the same mirrors.
	if !MirrorsEqual(c.Mirrors, other.Mirrors) {
		return false
	}

	// Installing a blob as a package fulfills any pending need for it as a
	// data blob as well, so Package wins over Data.
	kind := KindData
	if c.Kind == KindPackage || other.Kind == KindPackage {
		kind = KindPackage
	}

	c.ExpectedLen = expectedLen
	c.Kind = kind
	return true
}

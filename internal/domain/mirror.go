package domain

// MirrorDescriptor identifies a remote blob source. Two descriptors are
// equal iff all their attributes are equal.
type MirrorDescriptor struct {
	// BlobBaseURL is the base URL blobs are served under; the blob URL is
	// the base path joined with the content id's hex form.
	BlobBaseURL string
}

// MirrorsEqual reports whether two mirror lists are equal by value, in order.
func MirrorsEqual(a, b []MirrorDescriptor) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

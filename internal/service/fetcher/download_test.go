package fetcher

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/quarryos/pkgfetch/internal/domain"
)

func testID(t *testing.T) domain.ContentID {
	t.Helper()
	id, err := domain.ParseContentID("00112233445566778899aabbccddeeffffeeddccbbaa99887766554433221100")
	if err != nil {
		t.Fatalf("parse test id: %v", err)
	}
	return id
}

func TestMakeBlobURL(t *testing.T) {
	id := testID(t)
	hex := id.String()

	tests := []struct {
		name    string
		base    string
		want    string
		wantErr bool
	}{
		{name: "no path", base: "http://example.com", want: "http://example.com/" + hex},
		{name: "path without slash", base: "http://example.com/noslash", want: "http://example.com/noslash/" + hex},
		{name: "path with slash", base: "http://example.com/slash/", want: "http://example.com/slash/" + hex},
		{name: "two trailing slashes keep one", base: "http://example.com/twoslashes//", want: "http://example.com/twoslashes//" + hex},
		{name: "query preserved", base: "http://example.com/blobs/?auth=token", want: "http://example.com/blobs/" + hex + "?auth=token"},
		{name: "ipv6 host with zone", base: "http://[fe80::e022:d4ff:fe13:8ec3%252]:8083/blobs/", want: "http://[fe80::e022:d4ff:fe13:8ec3%252]:8083/blobs/" + hex},
		{name: "bare word", base: "HelloWorld", wantErr: true},
		{name: "host and port only", base: "server:80", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := makeBlobURL(tt.base, id)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("makeBlobURL(%q) = %q, want error", tt.base, got)
				}
				var urlErr *domain.BlobURLError
				if !errors.As(err, &urlErr) {
					t.Errorf("makeBlobURL(%q) error = %v, want BlobURLError", tt.base, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("makeBlobURL(%q) error: %v", tt.base, err)
			}
			if got != tt.want {
				t.Errorf("makeBlobURL(%q) = %q, want %q", tt.base, got, tt.want)
			}
		})
	}
}

// fakeSink implements port.WriteSink in memory.
type fakeSink struct {
	buf       bytes.Buffer
	truncated uint64
	sized     bool
	written   uint64
	closes    int
	writeFn   func(p []byte) (uint64, error)
}

func (s *fakeSink) Truncate(size uint64) error {
	s.truncated = size
	s.sized = true
	return nil
}

func (s *fakeSink) Write(p []byte) (uint64, error) {
	if s.writeFn != nil {
		n, err := s.writeFn(p)
		s.written += n
		return n, err
	}
	s.buf.Write(p)
	s.written += uint64(len(p))
	return uint64(len(p)), nil
}

func (s *fakeSink) Close() error {
	s.closes++
	return nil
}

func uint64p(v uint64) *uint64 { return &v }

func TestDownloadBlobNilSinkIsNoop(t *testing.T) {
	err := downloadBlob(context.Background(), http.DefaultClient, "http://unused.invalid/blob", domain.KindData, nil, 8192, nil)
	if err != nil {
		t.Fatalf("downloadBlob with nil sink: %v", err)
	}
}

func TestDownloadBlobSuccess(t *testing.T) {
	body := strings.Repeat("a", 100)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	sink := &fakeSink{}
	err := downloadBlob(context.Background(), srv.Client(), srv.URL, domain.KindData, uint64p(100), 8192, sink)
	if err != nil {
		t.Fatalf("downloadBlob: %v", err)
	}
	if sink.truncated != 100 {
		t.Errorf("truncated to %d, want 100", sink.truncated)
	}
	if sink.buf.String() != body {
		t.Errorf("sink holds %d bytes, want the full body", sink.buf.Len())
	}
	if sink.closes != 1 {
		t.Errorf("sink closed %d times, want 1", sink.closes)
	}
}

func TestDownloadBlobSplitsWrites(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("b"), 100))
	}))
	defer srv.Close()

	var sizes []int
	sink := &fakeSink{}
	sink.writeFn = func(p []byte) (uint64, error) {
		sizes = append(sizes, len(p))
		return uint64(len(p)), nil
	}
	if err := downloadBlob(context.Background(), srv.Client(), srv.URL, domain.KindData, uint64p(100), 10, sink); err != nil {
		t.Fatalf("downloadBlob: %v", err)
	}
	if len(sizes) == 0 {
		t.Fatal("no writes recorded")
	}
	var total int
	for _, n := range sizes {
		if n > 10 {
			t.Errorf("write of %d bytes exceeds max write size 10", n)
		}
		total += n
	}
	if total != 100 {
		t.Errorf("wrote %d bytes, want 100", total)
	}
}

func TestDownloadBlobBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	sink := &fakeSink{}
	err := downloadBlob(context.Background(), srv.Client(), srv.URL, domain.KindData, uint64p(100), 8192, sink)
	var statusErr *domain.BadHTTPStatusError
	if !errors.As(err, &statusErr) || statusErr.Status != http.StatusNotFound {
		t.Fatalf("downloadBlob error = %v, want BadHTTPStatusError{404}", err)
	}
	if sink.closes != 1 {
		t.Errorf("sink closed %d times, want 1", sink.closes)
	}
}

func TestDownloadBlobContentLengthMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("c"), 100))
	}))
	defer srv.Close()

	sink := &fakeSink{}
	err := downloadBlob(context.Background(), srv.Client(), srv.URL, domain.KindData, uint64p(50), 8192, sink)
	var mismatch *domain.ContentLengthMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("downloadBlob error = %v, want ContentLengthMismatchError", err)
	}
	if mismatch.Expected != 50 || mismatch.Actual != 100 {
		t.Errorf("mismatch = %+v, want expected 50 actual 100", mismatch)
	}
	if sink.closes != 1 {
		t.Errorf("sink closed %d times, want 1", sink.closes)
	}
}

func TestDownloadBlobUnknownLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Flush headers first so no Content-Length is set.
		w.(http.Flusher).Flush()
		w.Write([]byte("data"))
	}))
	defer srv.Close()

	sink := &fakeSink{}
	err := downloadBlob(context.Background(), srv.Client(), srv.URL, domain.KindData, nil, 8192, sink)
	if !errors.Is(err, domain.ErrUnknownLength) {
		t.Fatalf("downloadBlob error = %v, want ErrUnknownLength", err)
	}
	if sink.closes != 1 {
		t.Errorf("sink closed %d times, want 1", sink.closes)
	}
}

func TestDownloadBlobTooSmall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.(http.Flusher).Flush()
		w.Write(bytes.Repeat([]byte("d"), 50))
	}))
	defer srv.Close()

	sink := &fakeSink{}
	err := downloadBlob(context.Background(), srv.Client(), srv.URL, domain.KindData, uint64p(100), 8192, sink)
	if !errors.Is(err, domain.ErrBlobTooSmall) {
		t.Fatalf("downloadBlob error = %v, want ErrBlobTooSmall", err)
	}
	if sink.closes != 1 {
		t.Errorf("sink closed %d times, want 1", sink.closes)
	}
}

func TestDownloadBlobTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.(http.Flusher).Flush()
		w.Write(bytes.Repeat([]byte("e"), 100))
	}))
	defer srv.Close()

	sink := &fakeSink{}
	err := downloadBlob(context.Background(), srv.Client(), srv.URL, domain.KindData, uint64p(50), 8192, sink)
	if !errors.Is(err, domain.ErrBlobTooLarge) {
		t.Fatalf("downloadBlob error = %v, want ErrBlobTooLarge", err)
	}
	// The oversized chunk must be rejected before any of it is written.
	if sink.written > 50 {
		t.Errorf("wrote %d bytes past the expected length", sink.written)
	}
	if sink.closes != 1 {
		t.Errorf("sink closed %d times, want 1", sink.closes)
	}
}

func TestDownloadBlobOverwrite(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("f"), 10))
	}))
	defer srv.Close()

	sink := &fakeSink{}
	sink.writeFn = func(p []byte) (uint64, error) {
		return uint64(len(p)) + 1, nil
	}
	err := downloadBlob(context.Background(), srv.Client(), srv.URL, domain.KindData, uint64p(10), 8192, sink)
	if !errors.Is(err, domain.ErrOverwrite) {
		t.Fatalf("downloadBlob error = %v, want ErrOverwrite", err)
	}
	if sink.closes != 1 {
		t.Errorf("sink closed %d times, want 1", sink.closes)
	}
}

func TestDownloadBlobAlreadyExistsCompletion(t *testing.T) {
	newServer := func() *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write(bytes.Repeat([]byte("g"), 100))
		}))
	}

	// A store may report already-exists on the write that completes a meta
	// object; that is a success for Package and an error for Data.
	alreadyExistsSink := func() *fakeSink {
		s := &fakeSink{}
		s.writeFn = func(p []byte) (uint64, error) {
			if s.written+uint64(len(p)) == 100 {
				return uint64(len(p)), domain.ErrAlreadyExists
			}
			return uint64(len(p)), nil
		}
		return s
	}

	t.Run("package kind succeeds", func(t *testing.T) {
		srv := newServer()
		defer srv.Close()
		sink := alreadyExistsSink()
		err := downloadBlob(context.Background(), srv.Client(), srv.URL, domain.KindPackage, uint64p(100), 8192, sink)
		if err != nil {
			t.Fatalf("downloadBlob: %v", err)
		}
		if sink.closes != 1 {
			t.Errorf("sink closed %d times, want 1", sink.closes)
		}
	})

	t.Run("data kind fails", func(t *testing.T) {
		srv := newServer()
		defer srv.Close()
		sink := alreadyExistsSink()
		err := downloadBlob(context.Background(), srv.Client(), srv.URL, domain.KindData, uint64p(100), 8192, sink)
		if !errors.Is(err, domain.ErrAlreadyExists) {
			t.Fatalf("downloadBlob error = %v, want ErrAlreadyExists", err)
		}
		if sink.closes != 1 {
			t.Errorf("sink closed %d times, want 1", sink.closes)
		}
	})
}

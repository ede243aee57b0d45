package geoip

import (
	"net/netip"
	"testing"
)

type fakeReader struct {
	country string
	closed  bool
}

func (f *fakeReader) Lookup(_ netip.Addr) string { return f.country }
func (f *fakeReader) Close() error               { f.closed = true; return nil }

func TestService_Lookup_NoDatabaseReturnsEmpty(t *testing.T) {
	s := NewService(ServiceConfig{DBPath: "/nonexistent/country.mmdb"})
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	if got := s.Lookup(netip.MustParseAddr("1.2.3.4")); got != "" {
		t.Fatalf("expected empty country for missing db, got %q", got)
	}
}

func TestService_LookupString_InvalidIP(t *testing.T) {
	s := NewService(ServiceConfig{DBPath: "/nonexistent/country.mmdb"})
	if _, err := s.LookupString("not-an-ip"); err == nil {
		t.Fatal("expected error for invalid ip")
	}
}

func TestNoOpOpen_AlwaysEmpty(t *testing.T) {
	r, err := NoOpOpen("ignored")
	if err != nil {
		t.Fatalf("NoOpOpen: %v", err)
	}
	if got := r.Lookup(netip.MustParseAddr("8.8.8.8")); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

// Package geoip resolves an exit IP's ISO country code for proxy-selection
// diagnostics and alert metadata (SPEC_FULL.md §2.1) — campaign country
// remains authoritative for proxy selection itself (spec.md §4.B); this is
// a read-only enrichment layer. Adapted from the teacher's own GeoIP
// service: same MaxMind mmdb reader and hot-reload-under-RWMutex shape,
// with the GitHub-release auto-downloader dropped (this spec has no
// outbound asset-fetching dependency to drive one) in favor of a simpler
// periodic stat-and-reload of an operator-managed file, still on the same
// robfig/cron schedule primitive.
package geoip

import (
	"fmt"
	"log"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oschwald/maxminddb-golang"
	"github.com/robfig/cron/v3"
)

// Reader abstracts the GeoIP database reader so tests can substitute a
// fake without touching the filesystem.
type Reader interface {
	Lookup(ip netip.Addr) string
	Close() error
}

type noOpReader struct{}

func (noOpReader) Lookup(_ netip.Addr) string { return "" }
func (noOpReader) Close() error               { return nil }

// NoOpOpen is a placeholder OpenFunc for tests and for a deployment with no
// GeoIP database configured at all.
func NoOpOpen(_ string) (Reader, error) { return noOpReader{}, nil }

// OpenFunc opens a GeoIP database file and returns a Reader.
type OpenFunc func(path string) (Reader, error)

type mmdbReader struct {
	reader *maxminddb.Reader
}

type mmdbCountryRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
}

func (m *mmdbReader) Lookup(ip netip.Addr) string {
	if m == nil || m.reader == nil || !ip.IsValid() {
		return ""
	}
	ip = ip.Unmap()
	var record mmdbCountryRecord
	if err := m.reader.Lookup(net.IP(ip.AsSlice()), &record); err != nil {
		return ""
	}
	return strings.ToUpper(record.Country.ISOCode)
}

func (m *mmdbReader) Close() error {
	if m == nil || m.reader == nil {
		return nil
	}
	return m.reader.Close()
}

// MMDBOpen opens a MaxMind-compatible country mmdb database.
func MMDBOpen(path string) (Reader, error) {
	reader, err := maxminddb.Open(path)
	if err != nil {
		return nil, err
	}
	return &mmdbReader{reader: reader}, nil
}

// ServiceConfig configures the GeoIP service.
type ServiceConfig struct {
	DBPath         string   // full path to the country mmdb file
	ReloadSchedule string   // cron expression, default "0 7 * * *" — re-stats the file for an operator-side replacement
	OpenDB         OpenFunc // defaults to MMDBOpen
}

// Service provides country-code lookups with hot-reloading under an
// RWMutex, matching the teacher's own Service shape.
type Service struct {
	mu     sync.RWMutex
	reader Reader

	path     string
	openDB   OpenFunc
	cron     *cron.Cron
	modSeen  time.Time
}

// NewService builds a Service. The database at cfg.DBPath is loaded lazily
// on Start; a missing file is tolerated (Lookup then returns "").
func NewService(cfg ServiceConfig) *Service {
	if cfg.ReloadSchedule == "" {
		cfg.ReloadSchedule = "0 7 * * *"
	}
	if cfg.OpenDB == nil {
		cfg.OpenDB = MMDBOpen
	}
	s := &Service{
		path:   cfg.DBPath,
		openDB: cfg.OpenDB,
		cron:   cron.New(),
	}
	if _, err := s.cron.AddFunc(cfg.ReloadSchedule, s.reloadIfChanged); err != nil {
		log.Printf("[geoip] invalid cron expression %q: %v", cfg.ReloadSchedule, err)
	}
	return s
}

// Start loads the database if present and starts the reload cron.
func (s *Service) Start() error {
	s.reloadIfChanged()
	s.cron.Start()
	return nil
}

// Stop stops the reload cron and closes the reader.
func (s *Service) Stop() {
	<-s.cron.Stop().Done()
	s.mu.Lock()
	r := s.reader
	s.reader = nil
	s.mu.Unlock()
	if r != nil {
		_ = r.Close()
	}
}

// reloadIfChanged re-opens the database only if its mtime advanced since
// the last load, so an operator can drop in a refreshed mmdb file without
// a restart.
func (s *Service) reloadIfChanged() {
	info, err := os.Stat(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[geoip] stat %s: %v", s.path, err)
		}
		return
	}
	if !info.ModTime().After(s.modSeen) {
		return
	}
	reader, err := s.openDB(s.path)
	if err != nil {
		log.Printf("[geoip] open %s: %v", s.path, err)
		return
	}
	s.mu.Lock()
	old := s.reader
	s.reader = reader
	s.modSeen = info.ModTime()
	s.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
}

// Lookup returns the uppercase ISO-2 country code for ip, or "" if unknown
// or no database is loaded.
func (s *Service) Lookup(ip netip.Addr) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.reader == nil {
		return ""
	}
	return s.reader.Lookup(ip)
}

// LookupString parses and looks up a string IP address, the form exit IPs
// are stored in.
func (s *Service) LookupString(ip string) (string, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "", fmt.Errorf("geoip: invalid ip %q: %w", ip, err)
	}
	return s.Lookup(addr), nil
}

// dbPathFromDir is a small helper for callers that store the mmdb under a
// directory rather than a full path.
func dbPathFromDir(dir, filename string) string {
	if filename == "" {
		filename = "country.mmdb"
	}
	return filepath.Join(dir, filename)
}

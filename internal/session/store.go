package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/network"
)

// Auth cookies LinkedIn sets on a logged-in browser. li_at is the session
// token proper; JSESSIONID is the CSRF companion.
const (
	authCookie = "li_at"
	csrfCookie = "JSESSIONID"
)

// Store persists the authenticated browser session to disk. The blob is
// owned exclusively by the automation client that created it: login
// overwrites it, nothing else writes it.
type Store struct {
	path string
}

// Stored is the persisted session artifact.
type Stored struct {
	Cookies    []*network.Cookie `json:"cookies"`
	CapturedAt time.Time         `json:"captured_at"`
	ExpiresAt  time.Time         `json:"expires_at"`
}

// NewStore creates a session store at the given path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// DefaultPath returns the session file location under dataDir.
func DefaultPath(dataDir string) string {
	return filepath.Join(dataDir, "linkedin_session.json")
}

// Exists reports whether a persisted session is present on disk.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Save persists cookies to disk, overwriting any previous session.
// TODO: Encrypt the session blob at rest
func (s *Store) Save(cookies []*network.Cookie) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	var earliestExpiry time.Time
	for _, c := range cookies {
		if c.Name == authCookie {
			exp := time.Unix(int64(c.Expires), 0)
			if earliestExpiry.IsZero() || exp.Before(earliestExpiry) {
				earliestExpiry = exp
			}
		}
	}

	stored := Stored{
		Cookies:    cookies,
		CapturedAt: time.Now(),
		ExpiresAt:  earliestExpiry,
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.path, data, 0600)
}

// Load retrieves the persisted session from disk.
func (s *Store) Load() (*Stored, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}

	var stored Stored
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, err
	}

	return &stored, nil
}

// IsValid checks whether the stored session looks usable: not past its
// recorded expiry and carrying the required auth cookies. The real test is
// the automation client's session check against the live site.
func (s *Store) IsValid() bool {
	stored, err := s.Load()
	if err != nil {
		return false
	}

	if !stored.ExpiresAt.IsZero() && time.Now().After(stored.ExpiresAt) {
		return false
	}

	hasAuth := false
	hasCSRF := false
	for _, c := range stored.Cookies {
		if c.Name == authCookie && c.Value != "" {
			hasAuth = true
		}
		if c.Name == csrfCookie {
			hasCSRF = true
		}
	}

	return hasAuth && hasCSRF
}

// Clear removes the stored session.
func (s *Store) Clear() error {
	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// LinkedInCookies returns only the linkedin.com cookies for injection.
func (s *Store) LinkedInCookies() ([]*network.Cookie, error) {
	stored, err := s.Load()
	if err != nil {
		return nil, err
	}

	var cookies []*network.Cookie
	for _, c := range stored.Cookies {
		if c.Domain == ".linkedin.com" || c.Domain == "linkedin.com" || c.Domain == ".www.linkedin.com" {
			cookies = append(cookies, c)
		}
	}

	return cookies, nil
}

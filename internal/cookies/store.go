package cookies

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
)

// FileStore carries the jar's cookies for one backend across CLI runs. The
// file holds live session tokens and is written 0600.
type FileStore struct {
	path string
	base *url.URL
}

type storedJar struct {
	BaseURL string         `json:"base_url"`
	Cookies []storedCookie `json:"cookies"`
}

type storedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func NewFileStore(path, baseURL string) (*FileStore, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	return &FileStore{path: path, base: base}, nil
}

// Load puts the saved cookies back into jar. A missing file, or one saved for
// a different backend, loads nothing.
func (s *FileStore) Load(jar http.CookieJar) error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	var stored storedJar
	if err := json.Unmarshal(data, &stored); err != nil {
		return err
	}
	if stored.BaseURL != s.base.String() {
		return nil
	}
	restored := make([]*http.Cookie, 0, len(stored.Cookies))
	for _, c := range stored.Cookies {
		restored = append(restored, &http.Cookie{Name: c.Name, Value: c.Value, Path: "/"})
	}
	jar.SetCookies(s.base, restored)
	return nil
}

// Save writes the cookies the jar would send to the backend. An empty jar
// removes the file.
func (s *FileStore) Save(jar http.CookieJar) error {
	current := jar.Cookies(s.base)
	if len(current) == 0 {
		return s.Clear()
	}
	stored := storedJar{BaseURL: s.base.String()}
	for _, c := range current {
		stored.Cookies = append(stored.Cookies, storedCookie{Name: c.Name, Value: c.Value})
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Clear deletes the saved cookies.
func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

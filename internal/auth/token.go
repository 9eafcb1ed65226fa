// Package auth manages the stored credential used to call the school service.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/term"

	"github.com/smileynet/shkolo/internal/cache"
)

// ErrNotLoggedIn is returned when no credential is stored.
var ErrNotLoggedIn = errors.New("auth: not logged in")

// Credential is the persisted sign-in state.
type Credential struct {
	Token      string    `json:"token"`
	SchoolYear int64     `json:"school_year,omitempty"`
	UserName   string    `json:"user_name,omitempty"`
	SavedAt    time.Time `json:"saved_at"`
}

// Expiry reads the "exp" claim of the token. The signature is not verified;
// the service does that, this is only used to warn ahead of a 401.
func (c Credential) Expiry() (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(c.Token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// Expired reports whether the token's expiry claim is at or before now.
// Tokens without a readable expiry are assumed valid.
func (c Credential) Expired(now time.Time) bool {
	exp, ok := c.Expiry()
	return ok && !now.Before(exp)
}

// Load reads the credential from the cache directory.
func Load(dir string) (Credential, error) {
	p := filepath.Join(dir, cache.CredentialFile)
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Credential{}, ErrNotLoggedIn
		}
		return Credential{}, fmt.Errorf("auth: reading %s: %w", p, err)
	}
	var c Credential
	if err := json.Unmarshal(data, &c); err != nil {
		return Credential{}, fmt.Errorf("auth: parsing %s: %w", p, err)
	}
	if c.Token == "" {
		return Credential{}, ErrNotLoggedIn
	}
	return c, nil
}

// Save writes the credential, readable only by the current user.
func Save(dir string, c Credential) error {
	if c.SavedAt.IsZero() {
		c.SavedAt = time.Now()
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("auth: marshaling: %w", err)
	}
	if err := cache.WriteFileAtomic(dir, cache.CredentialFile, data, 0o600); err != nil {
		return fmt.Errorf("auth: saving credential: %w", err)
	}
	return nil
}

// Remove deletes the stored credential. It is not an error if none exists.
func Remove(dir string) error {
	p := filepath.Join(dir, cache.CredentialFile)
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("auth: removing %s: %w", p, err)
	}
	return nil
}

// readPasswordFunc is swapped out in tests.
var readPasswordFunc = term.ReadPassword

// PromptPassword prints prompt to w and reads a password from the terminal
// on fd without echoing it.
func PromptPassword(w io.Writer, fd int, prompt string) (string, error) {
	fmt.Fprint(w, prompt)
	pwd, err := readPasswordFunc(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("auth: reading password: %w", err)
	}
	return strings.TrimRight(string(pwd), "\r\n"), nil
}

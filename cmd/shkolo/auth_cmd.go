package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/smileynet/shkolo/internal/auth"
	"github.com/smileynet/shkolo/internal/config"
	"github.com/smileynet/shkolo/internal/shkolo"
)

// StatusCmd shows whether a sign-in is stored and where the cache lives.
type StatusCmd struct{}

// Run executes the status command.
func (s *StatusCmd) Run(g *Globals) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	return printStatus(os.Stdout, cfg, time.Now())
}

func printStatus(w io.Writer, cfg *config.Config, now time.Time) error {
	cred, err := auth.Load(cfg.Cache.Dir)
	switch {
	case errors.Is(err, auth.ErrNotLoggedIn):
		fmt.Fprintln(w, "Status: Not authenticated")
		fmt.Fprintln(w, "Run 'shkolo login' or 'shkolo import-token' to sign in.")
	case err != nil:
		return err
	default:
		fmt.Fprintln(w, "Status: Authenticated")
		if cred.UserName != "" {
			fmt.Fprintf(w, "User: %s\n", cred.UserName)
		}
		fmt.Fprintf(w, "School Year ID: %d\n", cred.SchoolYear)
		if exp, ok := cred.Expiry(); ok {
			if cred.Expired(now) {
				fmt.Fprintf(w, "Token expired: %s\n", exp.Local().Format(time.DateTime))
			} else {
				fmt.Fprintf(w, "Token expires: %s\n", exp.Local().Format(time.DateTime))
			}
		}
	}
	fmt.Fprintf(w, "Cache directory: %s\n", cfg.Cache.Dir)
	fmt.Fprintf(w, "Cache TTL: %d seconds\n", int(cfg.Cache.TTL.Seconds()))
	return nil
}

// LoginCmd signs in and stores the issued token.
type LoginCmd struct {
	Username string `help:"Account username. Prompted for when omitted." short:"u"`
	Password string `help:"Account password. Prompted for without echo when omitted." env:"SHKOLO_PASSWORD"`
}

// authenticator signs in against the service.
type authenticator interface {
	Login(ctx context.Context, username, password string) (shkolo.Session, error)
}

// Run executes the login command.
func (l *LoginCmd) Run(g *Globals) error {
	e, err := g.open()
	if err != nil {
		return err
	}
	defer e.close()

	if l.Username == "" {
		fmt.Fprint(os.Stderr, "Username: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("reading username: %w", err)
		}
		l.Username = strings.TrimSpace(line)
	}
	if l.Password == "" {
		pwd, err := auth.PromptPassword(os.Stderr, int(os.Stdin.Fd()), "Password: ")
		if err != nil {
			return err
		}
		l.Password = pwd
	}
	return l.run(context.Background(), os.Stdout, e.client(auth.Credential{}), e.cfg.Cache.Dir)
}

func (l *LoginCmd) run(ctx context.Context, w io.Writer, a authenticator, dir string) error {
	if l.Username == "" || l.Password == "" {
		return errors.New("username and password are required")
	}
	sess, err := a.Login(ctx, l.Username, l.Password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	cred := auth.Credential{Token: sess.Token, SchoolYear: sess.SchoolYear, UserName: sess.UserName}
	if err := auth.Save(dir, cred); err != nil {
		return err
	}
	name := sess.UserName
	if name == "" {
		name = l.Username
	}
	fmt.Fprintf(w, "Logged in as %s (school year %d)\n", name, sess.SchoolYear)
	return nil
}

// LogoutCmd ends the session and removes the stored token. Cached data is
// kept; use cache --clear-all to drop it as well.
type LogoutCmd struct{}

// Run executes the logout command.
func (l *LogoutCmd) Run(g *Globals) error {
	e, err := g.open()
	if err != nil {
		return err
	}
	defer e.close()

	cred, err := auth.Load(e.cfg.Cache.Dir)
	if errors.Is(err, auth.ErrNotLoggedIn) {
		fmt.Println("Not logged in")
		return nil
	}
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.API.Timeout)
	defer cancel()
	if err := e.client(cred).Logout(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "warning: server logout failed: %s\n", err)
	}
	if err := auth.Remove(e.cfg.Cache.Dir); err != nil {
		return err
	}
	fmt.Println("Logged out")
	return nil
}

// ImportTokenCmd stores a token obtained outside this tool, such as from
// the official app.
type ImportTokenCmd struct {
	Token      string `help:"Bearer token." required:""`
	SchoolYear int64  `help:"School year ID the token belongs to." name:"school-year" required:""`
	User       string `help:"Display name to show in status."`
}

// Run executes the import-token command.
func (i *ImportTokenCmd) Run(g *Globals) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	return i.run(os.Stdout, cfg.Cache.Dir, time.Now())
}

func (i *ImportTokenCmd) run(w io.Writer, dir string, now time.Time) error {
	token := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(i.Token), "Bearer "))
	if token == "" {
		return errors.New("token is empty")
	}
	if i.SchoolYear <= 0 {
		return fmt.Errorf("--school-year must be positive, got %d", i.SchoolYear)
	}
	cred := auth.Credential{Token: token, SchoolYear: i.SchoolYear, UserName: i.User, SavedAt: now}
	if err := auth.Save(dir, cred); err != nil {
		return err
	}
	fmt.Fprintln(w, "Token imported")
	if exp, ok := cred.Expiry(); ok {
		if cred.Expired(now) {
			fmt.Fprintf(w, "warning: token already expired at %s\n", exp.Local().Format(time.DateTime))
		} else {
			fmt.Fprintf(w, "Token expires: %s\n", exp.Local().Format(time.DateTime))
		}
	}
	return nil
}

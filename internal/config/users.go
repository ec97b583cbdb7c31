package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// UserEntry is one author mapping in users.toml.
type UserEntry struct {
	Name  string `toml:"name"`
	Email string `toml:"email"`
}

// Users maps ClearCase usernames to git author identities.
//
//	mail-suffix = "example.com"
//
//	[users.jdoe]
//	name = "Jane Doe"
//	email = "jane.doe@example.com"
type Users struct {
	MailSuffix string               `toml:"mail-suffix"`
	Users      map[string]UserEntry `toml:"users"`
}

// LoadUsers reads the author map at path. A missing file yields an empty
// map, so every author falls back to synthesis; a malformed file is an
// error.
func LoadUsers(path string) (*Users, error) {
	u := &Users{Users: map[string]UserEntry{}}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return u, nil
	}
	if err != nil {
		return nil, err
	}
	if err := toml.Unmarshal(data, u); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if u.Users == nil {
		u.Users = map[string]UserEntry{}
	}
	return u, nil
}

// Lookup resolves a username to a git author name and email. Unmapped
// users keep their username as the name; the email is synthesized from
// mail-suffix when one is configured, empty otherwise.
func (u *Users) Lookup(user string) (name, email string) {
	if entry, ok := u.Users[user]; ok {
		name, email = entry.Name, entry.Email
		if name == "" {
			name = user
		}
	} else {
		name = user
	}
	if email == "" && u.MailSuffix != "" {
		email = strings.ToLower(user) + "@" + u.MailSuffix
	}
	return name, email
}

package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/steveyegge/ccbridge/internal/bridge"
	"github.com/steveyegge/ccbridge/internal/cache"
	"github.com/steveyegge/ccbridge/internal/config"
	"github.com/steveyegge/ccbridge/internal/local"
	"github.com/steveyegge/ccbridge/internal/local/git"
	"github.com/steveyegge/ccbridge/internal/logging"
	"github.com/steveyegge/ccbridge/internal/remote/cleartool"
)

// app bundles the configured bridge and its resources for one command
// invocation.
type app struct {
	cfg    *config.Config
	bridge *bridge.Bridge
	cache  *cache.Cache
	git    *git.Git
	tool   *cleartool.Tool
	logs   io.Writer
}

// openApp loads configuration and wires the engine. mutate, when set,
// adjusts the bridge options before construction (e.g. to attach an
// event sink).
func openApp(mutate func(*config.Config, *bridge.Options), toolOpts ...cleartool.Option) (*app, error) {
	cfg, err := config.Load(flagRepo)
	if err != nil {
		return nil, err
	}

	logs := logging.Setup(logging.Options{File: cfg.LogFile, Quiet: flagQuiet})

	g, err := git.New(cfg.GitDir)
	if err != nil {
		return nil, err
	}
	tool := cleartool.New(cfg.View,
		append([]cleartool.Option{cleartool.WithBranches(cfg.Branches)}, toolOpts...)...)

	c, err := cache.Open(cfg.CachePath())
	if err != nil {
		return nil, fmt.Errorf("opening correspondence cache: %w", err)
	}

	users, err := config.LoadUsers(cfg.UsersPath())
	if err != nil {
		c.Close()
		return nil, err
	}
	if users.MailSuffix == "" {
		users.MailSuffix = cfg.MailSuffix
	}

	opts := bridge.Options{
		Remote:   tool,
		Local:    g,
		Cache:    c,
		Include:  cfg.Include,
		Exclude:  cfg.Exclude,
		TieBreak: bridge.TieBreak(cfg.TieBreak),
		MapAuthor: func(user string) local.Signature {
			name, email := users.Lookup(user)
			return local.Signature{Name: name, Email: email}
		},
		LockDir: cfg.LockDir(),
		Logger:  logging.New(logs, "bridge"),
	}
	if mutate != nil {
		mutate(cfg, &opts)
	}

	return &app{
		cfg:    cfg,
		bridge: bridge.New(opts),
		cache:  c,
		git:    g,
		tool:   tool,
		logs:   logs,
	}, nil
}

func (a *app) Close() {
	_ = a.cache.Close()
}

// parseAuthor splits "Name <email>" into a signature; input without
// angle brackets becomes a name-only signature.
func parseAuthor(s string) local.Signature {
	if open := strings.LastIndex(s, "<"); open >= 0 {
		if end := strings.LastIndex(s, ">"); end > open {
			return local.Signature{
				Name:  strings.TrimSpace(s[:open]),
				Email: s[open+1 : end],
			}
		}
	}
	return local.Signature{Name: strings.TrimSpace(s)}
}

// parseSince resolves a --since flag against the config default.
func (a *app) parseSince(flag string) (time.Time, error) {
	s := flag
	if s == "" {
		s = a.cfg.Since
	}
	return config.ParseSince(s, time.Now())
}

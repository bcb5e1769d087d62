package discover

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"mvdan.cc/sh/v3/expand"
)

type Type int

const (
	Auto Type = iota
	Command
	Git
)

var (
	// ErrDiscoveryFailed is returned when the list of files to format could not be produced.
	ErrDiscoveryFailed = errors.New("file discovery failed")
	ErrInvalidType     = errors.New("invalid discover type")

	typeNames = map[Type]string{
		Auto:    "auto",
		Command: "command",
		Git:     "git",
	}
)

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}

	return fmt.Sprintf("Type(%d)", t)
}

// TypeString returns the Type matching s.
func TypeString(s string) (Type, error) {
	for t, name := range typeNames {
		if strings.EqualFold(name, s) {
			return t, nil
		}
	}

	return 0, fmt.Errorf("%w: %q, expected one of <auto|command|git>", ErrInvalidType, s)
}

// Provider produces the paths to format, relative to the tree root.
// A base of "none" selects every matching file instead of those changed against base.
type Provider interface {
	Discover(ctx context.Context, base string, masks []string) ([]string, error)
}

// New creates a Provider rooted at treeRoot.
// For Auto, the command provider is used when a command has been configured, otherwise git.
func New(t Type, treeRoot string, command string) (Provider, error) {
	switch t {
	case Auto:
		if command != "" {
			return New(Command, treeRoot, command)
		}

		log.Debug("no discover command configured, using git")

		return New(Git, treeRoot, command)
	case Command:
		if command == "" {
			return nil, fmt.Errorf("%w: no discover command configured", ErrDiscoveryFailed)
		}

		provider, err := NewCommand(treeRoot, command, expand.ListEnviron(os.Environ()...))
		if err != nil {
			return nil, err
		}

		return provider, nil
	case Git:
		provider, err := NewGit(treeRoot)
		if err != nil {
			return nil, err
		}

		return provider, nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrInvalidType, t)
	}
}

// Package dialect holds the SQL dialects the data layer can speak and the
// driver error classification for each of them.
package dialect

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"

	"github.com/rzpsarthak13/lionrow/internal/core"
)

var (
	// dialectRegistry stores all registered dialects by name and alias.
	dialectRegistry = make(map[string]core.Dialect)

	// registryMutex protects the registry from concurrent access.
	registryMutex sync.RWMutex
)

// Register registers a dialect under its name and any aliases.
// This is called by each dialect's init() function.
// Panics if the dialect is nil or a name is already taken.
func Register(d core.Dialect, aliases ...string) {
	if d == nil {
		panic("dialect cannot be nil")
	}
	if d.Name() == "" {
		panic("dialect name cannot be empty")
	}

	registryMutex.Lock()
	defer registryMutex.Unlock()

	for _, name := range append([]string{d.Name()}, aliases...) {
		if _, exists := dialectRegistry[name]; exists {
			panic(fmt.Sprintf("dialect %q is already registered", name))
		}
		dialectRegistry[name] = d
	}
}

// Get returns the dialect registered under name.
func Get(name string) (core.Dialect, error) {
	registryMutex.RLock()
	defer registryMutex.RUnlock()

	d, ok := dialectRegistry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver: %s (registered: %s)", name, strings.Join(registeredLocked(), ", "))
	}
	return d, nil
}

// Registered returns the names of all registered dialects and aliases.
func Registered() []string {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	return registeredLocked()
}

func registeredLocked() []string {
	names := make([]string, 0, len(dialectRegistry))
	for name := range dialectRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// quoteWith doubles any embedded quote character and wraps the name.
func quoteWith(q string, name string) string {
	return q + strings.ReplaceAll(name, q, q+q) + q
}

// classifyCommon recognizes the driver-agnostic connectivity failures.
func classifyCommon(err error) error {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return wrapKind(core.ErrConnectivity, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return wrapKind(core.ErrConnectivity, err)
	}
	return err
}

// wrapKind wraps err with a core error kind unless it already carries it.
func wrapKind(kind, err error) error {
	if errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}

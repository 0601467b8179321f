// Package loader turns a filesystem path to a compiled Go plugin
// ("-buildmode=plugin" shared object) into an initialized tool library, or
// a precise, typed error. It owns the load -> verify -> init -> shutdown
// lifecycle described by the plugin ABI (package abi).
package loader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"plugin"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"github.com/pluginrt/hostrt/abi"
	"github.com/pluginrt/hostrt/hosterrors"
)

// Library is a loaded, initialized tool library. It owns exactly one
// shutdown call across its lifetime, guarded by an atomic swap so repeated
// or concurrent Shutdown calls are safe.
type Library struct {
	module         abi.ToolModule
	path           string
	shutdownCalled atomic.Bool
}

// Load opens the shared library at path, optionally verifying its SHA-256
// digest against checksum (hex-encoded; empty string skips verification),
// resolves the exported abi.Symbol, and checks its ABI version. Load does
// not call Init; callers must do so explicitly before using the library.
func Load(path string, checksum string) (*Library, error) {
	if !utf8.ValidString(path) {
		return nil, hosterrors.New(hosterrors.KindInvalidPath, fmt.Sprintf("path is not valid UTF-8: %q", path))
	}
	if strings.TrimSpace(path) == "" {
		return nil, hosterrors.New(hosterrors.KindInvalidPath, "path is empty")
	}

	if checksum != "" {
		actual, err := digestFile(path)
		if err != nil {
			return nil, hosterrors.Wrap(hosterrors.KindLibraryLoad, "read library for checksum", err)
		}
		if !strings.EqualFold(actual, checksum) {
			return nil, hosterrors.New(hosterrors.KindChecksumMismatch,
				fmt.Sprintf("checksum mismatch: expected %s, got %s", checksum, actual))
		}
	}

	p, err := plugin.Open(path)
	if err != nil {
		return nil, hosterrors.Wrap(hosterrors.KindLibraryLoad, "open plugin", err)
	}

	sym, err := p.Lookup(abi.Symbol)
	if err != nil {
		return nil, hosterrors.Wrap(hosterrors.KindLibraryLoad, "lookup root module symbol", err)
	}

	modPtr, ok := sym.(*abi.ToolModule)
	if !ok {
		return nil, hosterrors.New(hosterrors.KindLibraryLoad,
			fmt.Sprintf("symbol %s has unexpected type %T", abi.Symbol, sym))
	}
	module := *modPtr

	if module.Meta.ABIVersion != abi.Version {
		return nil, hosterrors.New(hosterrors.KindAbiMismatch,
			fmt.Sprintf("abi mismatch: expected %d, got %d", abi.Version, module.Meta.ABIVersion))
	}

	return &Library{module: module, path: path}, nil
}

// New wraps an already-constructed abi.ToolModule as a Library without
// going through the dynamic-loading path. It is meant for embedding
// built-in tool modules compiled directly into the host binary (and for
// tests), where there is no shared-object file to open or verify; path is
// used only for diagnostics. The module's ABI version is not checked,
// since in-process modules are always built against this copy of package
// abi.
func New(module abi.ToolModule, path string) *Library {
	return &Library{module: module, path: path}
}

// Init invokes the plugin's Init function. A non-nil error means the
// library is not usable; callers should discard it (the surrounding
// registry build continues with the next library).
func (l *Library) Init(ctx context.Context, rc abi.RuntimeContext) error {
	if l.module.Init == nil {
		return nil
	}
	if err := l.module.Init(ctx, rc); err != nil {
		return hosterrors.Wrap(hosterrors.KindInitFailed, "plugin init", err)
	}
	return nil
}

// Module returns the loaded root module.
func (l *Library) Module() abi.ToolModule { return l.module }

// Path returns the filesystem path the library was loaded from.
func (l *Library) Path() string { return l.path }

// Shutdown calls the plugin's Shutdown function exactly once, no matter how
// many times Shutdown is called or from how many goroutines.
func (l *Library) Shutdown() {
	if l.shutdownCalled.CompareAndSwap(false, true) {
		if l.module.Shutdown != nil {
			l.module.Shutdown()
		}
	}
}

func digestFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

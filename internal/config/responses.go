package config

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yungtweek/mockllm/internal/logger"

	"gopkg.in/yaml.v3"
)

const (
	DefaultUnknownResponse = "I don't know the answer to that."
	DefaultLagFactor       = 10.0
)

var (
	ErrNotMapping          = errors.New("file must contain a mapping")
	ErrMissingResponses    = errors.New("file must contain a 'responses' key")
	ErrResponsesNotMapping = errors.New("'responses' must be a mapping")
	ErrInvalidLagFactor    = errors.New("'settings.lag_factor' must be > 0")
)

// Error is returned for any config file that cannot be turned into a
// Snapshot: missing, unreadable, unparsable or structurally invalid.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Table maps exact prompts to canned answers.
type Table struct {
	Responses       map[string]string
	DefaultResponse string
}

// Lookup returns the stored answer for prompt, or the default answer. Only
// exact matches count.
func (t Table) Lookup(prompt string) string {
	if r, ok := t.Responses[prompt]; ok {
		return r
	}
	return t.DefaultResponse
}

type Settings struct {
	LagEnabled bool
	LagFactor  float64 // higher is faster; must be > 0
}

func DefaultSettings() Settings {
	return Settings{LagEnabled: false, LagFactor: DefaultLagFactor}
}

// Snapshot is an immutable view of one version of the config file.
type Snapshot struct {
	Path     string
	ModTime  time.Time
	Table    Table
	Settings Settings
}

type fileFormat struct {
	Responses map[string]string `yaml:"responses"`
	Defaults  struct {
		UnknownResponse *string `yaml:"unknown_response"`
	} `yaml:"defaults"`
	Settings struct {
		LagEnabled *bool    `yaml:"lag_enabled"`
		LagFactor  *float64 `yaml:"lag_factor"`
	} `yaml:"settings"`
}

// Load reads path into a fresh Snapshot. Keys absent from the file take
// their defaults; nothing is inherited from a previous snapshot.
func Load(path string) (*Snapshot, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}

	snap, err := parse(data)
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	snap.Path = path
	snap.ModTime = info.ModTime()
	return snap, nil
}

func parse(data []byte) (*Snapshot, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return nil, ErrNotMapping
	}

	top := root.Content[0]
	var responses *yaml.Node
	for i := 0; i+1 < len(top.Content); i += 2 {
		if top.Content[i].Value == "responses" {
			responses = top.Content[i+1]
			break
		}
	}
	if responses == nil {
		return nil, ErrMissingResponses
	}
	if responses.Kind != yaml.MappingNode {
		return nil, ErrResponsesNotMapping
	}

	var ff fileFormat
	if err := top.Decode(&ff); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	snap := &Snapshot{
		Table: Table{
			Responses:       ff.Responses,
			DefaultResponse: DefaultUnknownResponse,
		},
		Settings: DefaultSettings(),
	}
	if snap.Table.Responses == nil {
		snap.Table.Responses = map[string]string{}
	}
	if ff.Defaults.UnknownResponse != nil {
		snap.Table.DefaultResponse = *ff.Defaults.UnknownResponse
	}
	if ff.Settings.LagEnabled != nil {
		snap.Settings.LagEnabled = *ff.Settings.LagEnabled
	}
	if ff.Settings.LagFactor != nil {
		if *ff.Settings.LagFactor <= 0 {
			return nil, ErrInvalidLagFactor
		}
		snap.Settings.LagFactor = *ff.Settings.LagFactor
	}
	return snap, nil
}

// MaybeReload returns current unless the file at path was modified after
// current was loaded, in which case the whole file is loaded again.
func MaybeReload(path string, current *Snapshot) (*Snapshot, error) {
	if current == nil {
		return Load(path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	if !info.ModTime().After(current.ModTime) {
		return current, nil
	}
	return Load(path)
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithReloadHook registers fn to be called after every reload attempt that
// found a newer file. ok is false when the new file was rejected.
func WithReloadHook(fn func(ok bool)) StoreOption {
	return func(s *Store) {
		s.onReload = fn
	}
}

// Store owns the live Snapshot. Readers always get a complete snapshot: a
// reload builds a new value and swaps the pointer.
type Store struct {
	path     string
	snap     atomic.Pointer[Snapshot]
	reloadMu sync.Mutex
	onReload func(ok bool)
}

// NewStore loads path once and fails if it is not a valid config file.
func NewStore(path string, opts ...StoreOption) (*Store, error) {
	snap, err := Load(path)
	if err != nil {
		return nil, err
	}
	s := &Store{path: path}
	for _, opt := range opts {
		opt(s)
	}
	s.snap.Store(snap)
	logger.Log.Infow("[config] loaded responses", "path", path, "responses", len(snap.Table.Responses))
	return s, nil
}

func (s *Store) Path() string { return s.path }

// Snapshot returns the installed snapshot without checking the file.
func (s *Store) Snapshot() *Snapshot {
	return s.snap.Load()
}

// Current checks the file for changes and returns the snapshot to use. A
// rejected reload leaves the previous snapshot installed and returns the
// error, so requests fail until the file is fixed.
func (s *Store) Current() (*Snapshot, error) {
	cur := s.snap.Load()
	next, err := MaybeReload(s.path, cur)
	if err == nil && next == cur {
		return cur, nil
	}

	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	if err != nil {
		logger.Log.Errorw("[config] reload failed", "path", s.path, "err", err)
		if s.onReload != nil {
			s.onReload(false)
		}
		return nil, err
	}

	// Another request may have installed an even newer file meanwhile.
	if installed := s.snap.Load(); installed != cur && !next.ModTime.After(installed.ModTime) {
		return installed, nil
	}
	s.snap.Store(next)
	logger.Log.Infow("[config] reloaded responses", "path", s.path, "responses", len(next.Table.Responses))
	if s.onReload != nil {
		s.onReload(true)
	}
	return next, nil
}

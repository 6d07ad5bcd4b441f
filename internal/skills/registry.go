// Package skills implements the Skill Registry of spec §4.5: a
// write-through in-memory map of installed skills backed by one TOML
// file per skill on disk, with atomic install and a filesystem watch
// for externally-added skill files. Grounded on
// original_source/src/skills/loader.rs.
package skills

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/kaelvex/fabricd/internal/sandbox"
	"github.com/kaelvex/fabricd/internal/types"
)

var ErrNotFound = fmt.Errorf("skill not found")
var ErrBuiltinImmutable = fmt.Errorf("builtin skills cannot be uninstalled")

var skillFileName = regexp.MustCompile(`^[A-Za-z0-9_]+\.toml$`)

// Stats is the registry-wide summary returned by Stats().
type Stats struct {
	Total        int
	Enabled      int
	TotalUsage   uint64
	TotalSuccess uint64
}

// Registry is the in-memory, disk-backed skill store.
type Registry struct {
	dir string
	log *zap.Logger

	mu     sync.RWMutex
	skills map[string]*types.InstalledSkill

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
}

// Open loads every *.toml file under dir into memory and returns a
// Registry ready for use. dir is created if it does not exist.
func Open(dir string, log *zap.Logger) (*Registry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("skills: create dir: %w", err)
	}
	r := &Registry{dir: dir, log: log, skills: map[string]*types.InstalledSkill{}}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("skills: read dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !skillFileName.MatchString(e.Name()) {
			continue
		}
		if err := r.loadFile(filepath.Join(dir, e.Name())); err != nil {
			log.Warn("skipping unreadable skill file", zap.String("file", e.Name()), zap.Error(err))
		}
	}
	return r, nil
}

func (r *Registry) loadFile(path string) error {
	var installed types.InstalledSkill
	if _, err := toml.DecodeFile(path, &installed); err != nil {
		return err
	}
	r.mu.Lock()
	r.skills[installed.Definition.Skill.Name] = &installed
	r.mu.Unlock()
	return nil
}

// Install validates def, wraps it as an InstalledSkill from source, and
// persists it atomically (write-temp, rename) to <dir>/<name>.toml.
func (r *Registry) Install(def types.SkillDefinition, source types.SkillSource, sourceDetail string) (*types.InstalledSkill, error) {
	if v := sandbox.Validate(&def); !v.Valid {
		return nil, v.Errors[0]
	}

	installed := &types.InstalledSkill{
		Definition:   def,
		Source:       source,
		SourceDetail: sourceDetail,
		Enabled:      true,
		InstalledAt:  time.Now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.saveLocked(installed); err != nil {
		return nil, err
	}
	r.skills[def.Skill.Name] = installed
	return installed, nil
}

// Uninstall removes the named skill's file and in-memory entry. Builtin
// skills cannot be uninstalled, matching spec §4.5.
func (r *Registry) Uninstall(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.skills[name]
	if !ok {
		return ErrNotFound
	}
	if existing.Source == types.SourceBuiltin {
		return ErrBuiltinImmutable
	}
	delete(r.skills, name)
	path := r.pathFor(name)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("skills: remove file: %w", err)
	}
	return nil
}

// Enable toggles a skill's Enabled flag and persists the change. Builtin
// skills may be disabled even though they cannot be uninstalled.
func (r *Registry) Enable(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.skills[name]
	if !ok {
		return ErrNotFound
	}
	existing.Enabled = enabled
	return r.saveLocked(existing)
}

// Get returns the named installed skill, or ErrNotFound.
func (r *Registry) Get(name string) (*types.InstalledSkill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.skills[name]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *s
	return &clone, nil
}

// Filter narrows List results; a nil/zero field means "no constraint".
type Filter struct {
	Source       types.SkillSource
	HasSource    bool
	EnabledOnly  bool
	Tag          string
}

// List returns every installed skill matching filter.
func (r *Registry) List(filter Filter) []*types.InstalledSkill {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*types.InstalledSkill, 0, len(r.skills))
	for _, s := range r.skills {
		if filter.HasSource && s.Source != filter.Source {
			continue
		}
		if filter.EnabledOnly && !s.Enabled {
			continue
		}
		if filter.Tag != "" && !hasTag(s.Definition.Skill.Tags, filter.Tag) {
			continue
		}
		clone := *s
		out = append(out, &clone)
	}
	return out
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// RecordInvocation increments usage_count (and success_count on
// success), updates last_used, and persists the change.
func (r *Registry) RecordInvocation(name string, success bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.skills[name]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	s.UsageCount++
	if success {
		s.SuccessCount++
	}
	s.LastUsed = &now
	return r.saveLocked(s)
}

// Stats aggregates usage across every installed skill.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var st Stats
	for _, s := range r.skills {
		st.Total++
		if s.Enabled {
			st.Enabled++
		}
		st.TotalUsage += s.UsageCount
		st.TotalSuccess += s.SuccessCount
	}
	return st
}

func (r *Registry) pathFor(name string) string {
	return filepath.Join(r.dir, name+".toml")
}

// saveLocked persists installed atomically. Caller must hold r.mu.
func (r *Registry) saveLocked(installed *types.InstalledSkill) error {
	tmp := r.pathFor(installed.Definition.Skill.Name) + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("skills: create temp file: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(installed); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("skills: encode toml: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("skills: close temp file: %w", err)
	}
	if err := os.Rename(tmp, r.pathFor(installed.Definition.Skill.Name)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("skills: rename: %w", err)
	}
	return nil
}

// Watch starts an fsnotify watch on the registry directory, reloading a
// skill's in-memory entry whenever its file changes externally (e.g. an
// operator editing a skill by hand). Call Close to stop watching.
func (r *Registry) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("skills: new watcher: %w", err)
	}
	if err := w.Add(r.dir); err != nil {
		w.Close()
		return fmt.Errorf("skills: watch dir: %w", err)
	}

	r.mu.Lock()
	r.watcher = w
	r.stopCh = make(chan struct{})
	r.mu.Unlock()

	go r.watchLoop(w, r.stopCh)
	return nil
}

func (r *Registry) watchLoop(w *fsnotify.Watcher, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if !skillFileName.MatchString(filepath.Base(ev.Name)) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if err := r.loadFile(ev.Name); err != nil {
					r.log.Warn("reload failed for changed skill file", zap.String("file", ev.Name), zap.Error(err))
				}
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			r.log.Warn("skill watcher error", zap.Error(err))
		}
	}
}

// Close stops the directory watch, if one was started.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.watcher == nil {
		return nil
	}
	close(r.stopCh)
	err := r.watcher.Close()
	r.watcher = nil
	return err
}

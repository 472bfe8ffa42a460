package registry

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/jordanhubbard/memhub/pkg/models"
)

// Registry tracks the project scopes the API accepts. Projects come from
// three places: the inline config seed, an optional YAML registry file, and
// the store itself (every scope that already holds entries stays valid).
// Project ids are lower-cased; the "all" scope is always known.
type Registry struct {
	mu       sync.RWMutex
	projects map[string]bool
	path     string
	watcher  *fsnotify.Watcher
}

// registryFile is the on-disk shape of the project registry.
type registryFile struct {
	Projects []string `yaml:"projects"`
}

// New creates a registry seeded with the given project ids.
func New(seed []string) *Registry {
	r := &Registry{projects: make(map[string]bool)}
	r.AddAll(seed)
	return r
}

// LoadFile merges the projects listed in a YAML registry file. A missing
// file is not an error.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read project registry %s: %w", path, err)
	}

	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse project registry %s: %w", path, err)
	}

	r.AddAll(file.Projects)
	r.mu.Lock()
	r.path = path
	r.mu.Unlock()
	return nil
}

// Watch reloads the registry file whenever it changes on disk. Reloads
// merge; removing a project from the file does not revoke a scope that
// already holds entries.
func (r *Registry) Watch() error {
	r.mu.RLock()
	path := r.path
	r.mu.RUnlock()
	if path == "" {
		return fmt.Errorf("no registry file loaded")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create registry watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	r.mu.Lock()
	r.watcher = watcher
	r.mu.Unlock()

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := r.LoadFile(path); err != nil {
					log.Printf("[REGISTRY] Reload failed: %v", err)
					continue
				}
				log.Printf("[REGISTRY] Reloaded %s (%d projects)", path, r.Len())
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[REGISTRY] Watch error: %v", err)
			}
		}
	}()

	return nil
}

// Close stops the file watcher if one is running.
func (r *Registry) Close() error {
	r.mu.Lock()
	watcher := r.watcher
	r.watcher = nil
	r.mu.Unlock()
	if watcher == nil {
		return nil
	}
	return watcher.Close()
}

// Add registers one project scope.
func (r *Registry) Add(projectID string) {
	projectID = strings.ToLower(strings.TrimSpace(projectID))
	if projectID == "" {
		return
	}
	r.mu.Lock()
	r.projects[projectID] = true
	r.mu.Unlock()
}

// AddAll registers a batch of project scopes.
func (r *Registry) AddAll(projectIDs []string) {
	for _, id := range projectIDs {
		r.Add(id)
	}
}

// Contains reports whether the project scope is known. The cross-project
// sentinel is always known.
func (r *Registry) Contains(projectID string) bool {
	projectID = strings.ToLower(strings.TrimSpace(projectID))
	if projectID == models.CrossProjectID {
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.projects[projectID]
}

// List returns the known project ids in no particular order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.projects))
	for id := range r.projects {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of known projects.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.projects)
}

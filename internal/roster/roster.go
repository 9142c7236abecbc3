// Package roster holds the in-memory dog collection of one session and the
// rules for mutating it.
package roster

import (
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/vyrodovalexey/doggos/internal/model"
)

var (
	// ErrDuplicateName is returned by Add when a dog with the same name,
	// compared case-insensitively, is already on the roster.
	ErrDuplicateName = errors.New("a dog with this name already exists")
	// ErrClosed is returned by Add once the roster has been closed.
	ErrClosed = errors.New("roster closed")
)

// Roster is the single source of truth for one session's dogs.
// Names are unique under case-insensitive comparison; the stored casing is the
// one the dog was added with. All methods are safe for concurrent use.
type Roster struct {
	mu     sync.RWMutex
	policy MatchPolicy
	dogs   map[string]model.Dog // exact name -> dog
	folded map[string]string    // folded name -> exact name

	subs    map[int]chan struct{}
	nextSub int
	closed  bool
}

// New creates an empty Roster filtering its view with the given policy.
func New(policy MatchPolicy) *Roster {
	if policy == "" {
		policy = DefaultMatchPolicy
	}

	return &Roster{
		policy: policy,
		dogs:   make(map[string]model.Dog),
		folded: make(map[string]string),
		subs:   make(map[int]chan struct{}),
	}
}

// Policy returns the match policy used by View.
func (r *Roster) Policy() MatchPolicy {
	return r.policy
}

// Add inserts the candidate unchanged. It fails with ErrDuplicateName, leaving
// the roster untouched, if the name is already taken in any casing, and with
// ErrClosed after Close.
func (r *Roster) Add(candidate model.Dog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	key := fold(candidate.Name)
	if _, taken := r.folded[key]; taken {
		return ErrDuplicateName
	}

	r.dogs[candidate.Name] = candidate
	r.folded[key] = candidate.Name
	r.notifyLocked()

	return nil
}

// Remove deletes the dog with exactly this name. Removing an absent name, or
// removing from a closed roster, is a no-op; the result reports whether
// anything was removed.
func (r *Roster) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.dogs[name]; !exists || r.closed {
		return false
	}

	delete(r.dogs, name)
	delete(r.folded, fold(name))
	r.notifyLocked()

	return true
}

// ToggleLiked flips IsLiked on the dog with exactly this name and returns the
// updated dog. It is a no-op returning false when the name is absent or the
// roster is closed.
func (r *Roster) ToggleLiked(name string) (model.Dog, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dog, exists := r.dogs[name]
	if !exists || r.closed {
		return model.Dog{}, false
	}

	dog.IsLiked = !dog.IsLiked
	r.dogs[name] = dog
	r.notifyLocked()

	return dog, true
}

// Get returns the dog with exactly this name.
func (r *Roster) Get(name string) (model.Dog, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dog, exists := r.dogs[name]
	return dog, exists
}

// Len returns the number of dogs on the roster.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.dogs)
}

// View computes the derived view for query: liked dogs ascending by name, then
// unliked dogs ascending by name, filtered by the match policy when query is
// non-empty. The result is a fresh slice owned by the caller.
func (r *Roster) View(query string) []model.Dog {
	r.mu.RLock()
	dogs := make([]model.Dog, 0, len(r.dogs))
	for _, dog := range r.dogs {
		dogs = append(dogs, dog)
	}
	r.mu.RUnlock()

	slices.SortFunc(dogs, compareForView)

	if query == "" {
		return dogs
	}

	return slices.DeleteFunc(dogs, func(d model.Dog) bool {
		return !r.policy.Matches(d.Name, query)
	})
}

// compareForView orders liked dogs first, then by name in byte order, so
// "Bo" sorts before "ann".
func compareForView(a, b model.Dog) int {
	if a.IsLiked != b.IsLiked {
		if a.IsLiked {
			return -1
		}
		return 1
	}

	return strings.Compare(a.Name, b.Name)
}

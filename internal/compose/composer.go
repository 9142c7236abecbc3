// Package compose implements the "add a dog" flow: a draft that fetches a
// random photo in the background while the user types, and is committed to
// the roster or abandoned.
package compose

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/doggos/internal/model"
	"github.com/vyrodovalexey/doggos/internal/roster"
)

// DefaultFetchTimeout bounds a draft's photo fetch when none is configured.
const DefaultFetchTimeout = 10 * time.Second

// Composer errors.
var (
	ErrDraftNotFound = errors.New("draft not found")
	ErrClosed        = errors.New("composer closed")
)

// ImageFetcher returns the URL of a random dog photo.
type ImageFetcher interface {
	RandomImage(ctx context.Context) (string, error)
}

// State is the lifecycle state of a draft.
type State string

// Draft states.
const (
	StateLoading State = "loading"
	StateReady   State = "ready"
)

// Draft is a snapshot of an add-flow in progress.
type Draft struct {
	ID        string    `json:"id"`
	State     State     `json:"state"`
	ImageURL  string    `json:"image_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// HasImage reports whether the fetch produced a photo.
func (d Draft) HasImage() bool {
	return d.ImageURL != ""
}

type draft struct {
	snapshot Draft
	cancel   context.CancelFunc
	ready    chan struct{}
}

// Composer owns the drafts of one session and commits them to its roster.
type Composer struct {
	fetcher ImageFetcher
	roster  *roster.Roster
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.Mutex
	drafts map[string]*draft
	closed bool
	wg     sync.WaitGroup
}

// New creates a Composer adding dogs to r. A non-positive timeout selects
// DefaultFetchTimeout.
func New(fetcher ImageFetcher, r *roster.Roster, timeout time.Duration, logger *zap.Logger) *Composer {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Composer{
		fetcher: fetcher,
		roster:  r,
		timeout: timeout,
		logger:  logger,
		drafts:  make(map[string]*draft),
	}
}

// Start opens a new draft in StateLoading and fetches its photo in the
// background. The call never blocks on the fetch.
func (c *Composer) Start() (Draft, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return Draft{}, ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	d := &draft{
		snapshot: Draft{
			ID:        uuid.New().String(),
			State:     StateLoading,
			CreatedAt: time.Now().UTC(),
		},
		cancel: cancel,
		ready:  make(chan struct{}),
	}
	c.drafts[d.snapshot.ID] = d

	c.wg.Add(1)
	go c.fetch(ctx, d)

	c.logger.Debug("draft started", zap.String("draft_id", d.snapshot.ID))
	return d.snapshot, nil
}

// fetch runs the photo request for d. The result is stored only if d is still
// open when the request completes; otherwise it is dropped.
func (c *Composer) fetch(ctx context.Context, d *draft) {
	defer c.wg.Done()
	defer d.cancel()
	defer close(d.ready)

	imageURL, err := c.fetcher.RandomImage(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.drafts[d.snapshot.ID] != d {
		c.logger.Debug("discarding image for abandoned draft", zap.String("draft_id", d.snapshot.ID))
		return
	}

	if err != nil {
		c.logger.Info("draft continues without photo",
			zap.String("draft_id", d.snapshot.ID),
			zap.Error(err),
		)
	} else {
		d.snapshot.ImageURL = imageURL
	}
	d.snapshot.State = StateReady
}

// Get returns the current snapshot of a draft.
func (c *Composer) Get(id string) (Draft, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.drafts[id]
	if !ok {
		return Draft{}, ErrDraftNotFound
	}
	return d.snapshot, nil
}

// Wait blocks until the draft is ready or ctx is done and returns the latest
// snapshot. A ctx expiry is not an error: the draft is returned still loading.
// A draft abandoned while waiting yields ErrDraftNotFound.
func (c *Composer) Wait(ctx context.Context, id string) (Draft, error) {
	c.mu.Lock()
	d, ok := c.drafts[id]
	c.mu.Unlock()
	if !ok {
		return Draft{}, ErrDraftNotFound
	}

	select {
	case <-d.ready:
	case <-ctx.Done():
	}

	return c.Get(id)
}

// Cancel abandons a draft and cancels its in-flight fetch.
func (c *Composer) Cancel(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.drafts[id]
	if !ok {
		return ErrDraftNotFound
	}

	c.removeLocked(d)
	c.logger.Debug("draft cancelled", zap.String("draft_id", id))
	return nil
}

// Commit validates in, adds the resulting dog with the draft's photo (none if
// the fetch has not finished) to the roster and closes the draft.
// On roster.ErrDuplicateName the draft stays open so the name can be corrected.
func (c *Composer) Commit(id string, in model.DogInput) (model.Dog, error) {
	if err := in.Validate(); err != nil {
		return model.Dog{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return model.Dog{}, ErrClosed
	}

	d, ok := c.drafts[id]
	if !ok {
		return model.Dog{}, ErrDraftNotFound
	}

	dog := in.Dog(d.snapshot.ImageURL)
	if err := c.roster.Add(dog); err != nil {
		return model.Dog{}, fmt.Errorf("commit draft %s: %w", id, err)
	}

	c.removeLocked(d)
	c.logger.Debug("draft committed",
		zap.String("draft_id", id),
		zap.String("dog", dog.Name),
		zap.Bool("has_image", dog.HasImage()),
	)
	return dog, nil
}

// Len returns the number of open drafts.
func (c *Composer) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.drafts)
}

// Close abandons every draft and waits for all fetches to return.
func (c *Composer) Close() {
	c.mu.Lock()
	c.closed = true
	for _, d := range c.drafts {
		c.removeLocked(d)
	}
	c.mu.Unlock()

	c.wg.Wait()
}

// removeLocked forgets d and stops its fetch. c.mu must be held.
func (c *Composer) removeLocked(d *draft) {
	delete(c.drafts, d.snapshot.ID)
	d.cancel()
}

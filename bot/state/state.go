// Package state persists the bot's posting progress so that a post which
// failed remotely is retried with the same image after a restart.
package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// ErrCorruptState is returned alongside a default State when the state file
// exists but cannot be decoded.
var ErrCorruptState = errors.New("corrupt state file")

// Phase is where the bot is in its wait → generate → post cycle.
type Phase string

const (
	// Awaiting means the next image has not been generated yet.
	Awaiting Phase = "awaiting"
	// Generated means an image exists on disk but has not been posted.
	Generated Phase = "generated"
)

// State is the current state of the bot. A zero LastPost means nothing has
// been posted yet.
type State struct {
	LastPost time.Time
	ID       uint32
	Phase    Phase
	Seed     int64
	Image    string
}

// record is the on-disk form of State. last_post is decoded loosely so that
// state files holding a quoted RFC 3339 timestamp still load.
type record struct {
	LastPost any    `toml:"last_post,omitempty"`
	ID       uint32 `toml:"id"`
	Phase    Phase  `toml:"phase"`
	Seed     int64  `toml:"seed"`
	Image    string `toml:"image,omitempty"`
}

func (r record) state() (State, error) {
	st := State{
		ID:    r.ID,
		Phase: Phase(strings.ToLower(string(r.Phase))),
		Seed:  r.Seed,
		Image: r.Image,
	}

	switch v := r.LastPost.(type) {
	case nil:
	case time.Time:
		st.LastPost = v.UTC()
	case toml.LocalDateTime:
		st.LastPost = v.AsTime(time.UTC)
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return st, fmt.Errorf("last_post: %v", err)
		}
		st.LastPost = t.UTC()
	default:
		return st, fmt.Errorf("last_post has unsupported type %T", v)
	}

	if st.ID == 0 || (st.Phase != Awaiting && st.Phase != Generated) {
		return st, fmt.Errorf("id %d phase %q", r.ID, r.Phase)
	}
	// Older state files do not record the image name.
	if st.Phase == Generated && st.Image == "" {
		st.Image = ImageName(st.ID, "png")
	}
	return st, nil
}

// Default returns the state of a bot that has never posted.
func Default() State {
	return State{ID: 1, Phase: Awaiting}
}

// Generated records that the image for the current id was rendered from seed
// and saved under the given file name.
func (s State) Generated(seed int64, image string) State {
	s.Phase = Generated
	s.Seed = seed
	s.Image = image
	return s
}

// Posted advances to the next id after a successful post.
func (s State) Posted(now time.Time) State {
	return State{
		LastPost: now.UTC(),
		ID:       s.ID + 1,
		Phase:    Awaiting,
	}
}

// Store reads and writes the state file and the images directory.
type Store struct {
	path      string
	imagesDir string
}

// NewStore creates a store for the state file at path and images under imagesDir.
func NewStore(path, imagesDir string) *Store {
	return &Store{path: path, imagesDir: imagesDir}
}

// Load reads the state file. A missing file yields the default state; an
// unreadable one yields the default state and an error wrapping ErrCorruptState.
func (s *Store) Load() (State, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Default(), fmt.Errorf("%w: %v", ErrCorruptState, err)
	}

	r := record{ID: 1, Phase: Awaiting}
	if err := toml.Unmarshal(data, &r); err != nil {
		return Default(), fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	st, err := r.state()
	if err != nil {
		return Default(), fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	return st, nil
}

// Save writes st atomically.
func (s *Store) Save(st State) error {
	r := record{ID: st.ID, Phase: st.Phase, Seed: st.Seed, Image: st.Image}
	if !st.LastPost.IsZero() {
		r.LastPost = st.LastPost.UTC()
	}
	data, err := toml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace state: %w", err)
	}
	return nil
}

// ImageName returns the file name used for the image of post id.
func ImageName(id uint32, ext string) string {
	return fmt.Sprintf("%d.%s", id, ext)
}

// ImagePath returns where an image called name is stored.
func (s *Store) ImagePath(name string) string {
	return filepath.Join(s.imagesDir, name)
}

// SaveImage writes data under the images directory, creating it if needed,
// and returns the full path.
func (s *Store) SaveImage(name string, data []byte) (string, error) {
	if err := os.MkdirAll(s.imagesDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create images directory: %w", err)
	}
	path := s.ImagePath(name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write image: %w", err)
	}
	return path, nil
}

// LoadImage reads a previously saved image.
func (s *Store) LoadImage(name string) ([]byte, error) {
	if name == "" {
		return nil, fmt.Errorf("no image recorded in state")
	}
	data, err := os.ReadFile(s.ImagePath(name))
	if err != nil {
		return nil, fmt.Errorf("failed to read saved image: %w", err)
	}
	return data, nil
}

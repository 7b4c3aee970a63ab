// Package framedir is the auxiliary lossless side-store for video
// carriers: per-embed directories of original-quality stego frames,
// keyed by a hash of carrier properties and the normalized password,
// with a badger index for lookup.
package framedir

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrNotFound means no frame directory exists for the key.
var ErrNotFound = errors.New("no frame directory for key")

// Entry is the indexed metadata for one frame directory.
type Entry struct {
	Dir        string    `json:"dir"`
	FrameCount int       `json:"frame_count"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store holds frame directories under a root path. Directories are
// immutable once committed: writes land in a staging directory and
// are renamed into place so a concurrent reader never observes a
// partial set of frames.
type Store struct {
	root string
	db   *badger.DB

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Open opens (or creates) the store rooted at dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	opts := badger.DefaultOptions(filepath.Join(dir, "index")).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open frame index: %w", err)
	}
	return &Store{root: dir, db: db, locks: make(map[string]*sync.Mutex)}, nil
}

// Close releases the index.
func (s *Store) Close() error {
	return s.db.Close()
}

// keyLock serializes writers targeting the same key.
func (s *Store) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// Writer stages frames for one key until Commit. WriteFrame is safe
// for concurrent use; frames are independent files.
type Writer struct {
	store   *Store
	key     string
	staging string
	done    bool

	mu    sync.Mutex
	entry Entry
}

// Create begins a frame directory for key. A previous directory under
// the same key is replaced atomically at commit time.
func (s *Store) Create(key string, width, height int) (*Writer, error) {
	staging := filepath.Join(s.root, "staging-"+uuid.NewString())
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return nil, err
	}
	return &Writer{
		store:   s,
		key:     key,
		staging: staging,
		entry:   Entry{Width: width, Height: height, CreatedAt: time.Now().UTC()},
	}, nil
}

// WriteFrame stores frame i losslessly.
func (w *Writer) WriteFrame(i int, img *image.NRGBA) error {
	f, err := os.Create(filepath.Join(w.staging, frameName(i)))
	if err != nil {
		return err
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return err
	}
	w.mu.Lock()
	if i+1 > w.entry.FrameCount {
		w.entry.FrameCount = i + 1
	}
	w.mu.Unlock()
	return nil
}

// Commit renames the staging directory into place and records the
// entry in the index.
func (w *Writer) Commit() error {
	if w.done {
		return errors.New("frame directory already committed")
	}
	w.done = true

	lock := w.store.keyLock(w.key)
	lock.Lock()
	defer lock.Unlock()

	final := filepath.Join(w.store.root, w.key)
	if err := os.RemoveAll(final); err != nil {
		return err
	}
	if err := os.Rename(w.staging, final); err != nil {
		return err
	}

	w.entry.Dir = w.key
	raw, err := json.Marshal(w.entry)
	if err != nil {
		return err
	}
	err = w.store.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(w.key), raw)
	})
	if err != nil {
		return err
	}

	log.Debug().Str("key", w.key).Int("frames", w.entry.FrameCount).
		Msg("committed frame directory")
	return nil
}

// Abort discards staged frames.
func (w *Writer) Abort() {
	if !w.done {
		w.done = true
		os.RemoveAll(w.staging)
	}
}

// Lookup returns the entry for key, or ErrNotFound.
func (s *Store) Lookup(key string) (*Entry, error) {
	var entry Entry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Frame loads frame i of the entry.
func (s *Store) Frame(entry *Entry, i int) (*image.NRGBA, error) {
	f, err := os.Open(filepath.Join(s.root, entry.Dir, frameName(i)))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, err
	}
	if n, ok := img.(*image.NRGBA); ok {
		return n, nil
	}
	out := image.NewNRGBA(img.Bounds())
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(x, y, img.At(x, y))
		}
	}
	return out, nil
}

func frameName(i int) string {
	return fmt.Sprintf("frame-%06d.png", i)
}

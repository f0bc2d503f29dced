package engine

import (
	"encoding/json"
	"os"
)

// playlistStoreKey is the single Store key all presets are kept under, as
// one JSON array — simple enough that a flash-backed Store never needs
// more than one named blob for this feature.
const playlistStoreKey = "playlists"

// SavePlaylist upserts preset into the stored playlist (matched by ID;
// ID 0 always appends as a new entry) and writes the whole list back.
func SavePlaylist(store Store, preset PlaylistPreset) error {
	presets, err := LoadPlaylists(store)
	if err != nil {
		return err
	}

	if preset.ID == 0 {
		preset.ID = nextPlaylistID(presets)
		presets = append(presets, preset)
	} else {
		replaced := false
		for i := range presets {
			if presets[i].ID == preset.ID {
				presets[i] = preset
				replaced = true
				break
			}
		}
		if !replaced {
			presets = append(presets, preset)
		}
	}

	data, err := json.Marshal(presets)
	if err != nil {
		return err
	}
	return store.Put(playlistStoreKey, data)
}

// LoadPlaylists returns every stored preset. A Store with nothing saved
// yet yields an empty slice, not an error.
func LoadPlaylists(store Store) ([]PlaylistPreset, error) {
	data, err := store.Get(playlistStoreKey)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var presets []PlaylistPreset
	if err := json.Unmarshal(data, &presets); err != nil {
		return nil, err
	}
	return presets, nil
}

// DeletePlaylist removes the preset with the given ID, if present.
func DeletePlaylist(store Store, id int) error {
	presets, err := LoadPlaylists(store)
	if err != nil {
		return err
	}
	kept := presets[:0]
	for _, p := range presets {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	data, err := json.Marshal(kept)
	if err != nil {
		return err
	}
	return store.Put(playlistStoreKey, data)
}

func nextPlaylistID(presets []PlaylistPreset) int {
	max := 0
	for _, p := range presets {
		if p.ID > max {
			max = p.ID
		}
	}
	return max + 1
}

// FileStore is a filesystem-backed Store, for the host test harness and
// any target with a writable filesystem. Get on a missing key returns an
// empty, non-error result so LoadPlaylists works against a fresh store.
type FileStore struct {
	dir string
}

// NewFileStore creates a FileStore rooted at dir. The directory is not
// created here — the first Put does that.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (f *FileStore) keyPath(key string) string {
	return f.dir + "/" + key + ".json"
}

func (f *FileStore) Get(key string) ([]byte, error) {
	data, err := os.ReadFile(f.keyPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

func (f *FileStore) Put(key string, value []byte) error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(f.keyPath(key), value, 0o644)
}

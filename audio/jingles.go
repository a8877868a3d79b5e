package audio

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// RandomJingle in a jingle slot asks for a uniform draw from the library.
const RandomJingle = "RANDOM"

// AllowedExtensions are the containers accepted for programmes and jingles.
var AllowedExtensions = []string{".mp3", ".wav", ".flac"}

// IsAudioFile reports whether name has one of AllowedExtensions.
func IsAudioFile(name string) bool {
	return slices.Contains(AllowedExtensions, strings.ToLower(filepath.Ext(name)))
}

// JingleLibrary is the directory of intro/outro clips. The random source is
// injected so tests can pin selections with a seed.
type JingleLibrary struct {
	dir string

	mu  sync.Mutex
	rng *rand.Rand
}

// NewJingleLibrary serves clips from dir. A nil rng gets a randomly seeded one.
func NewJingleLibrary(dir string, rng *rand.Rand) *JingleLibrary {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &JingleLibrary{dir: dir, rng: rng}
}

// NewSeededJingleLibrary draws from a deterministic PCG source.
func NewSeededJingleLibrary(dir string, seed uint64) *JingleLibrary {
	return NewJingleLibrary(dir, rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

// Dir returns the library directory.
func (l *JingleLibrary) Dir() string {
	return l.dir
}

// List returns the sorted names of the available clips. A missing directory
// is an empty library.
func (l *JingleLibrary) List() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read jingle dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && IsAudioFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

// Pick resolves the intro and outro slots to clip paths. Random slots are
// drawn independently, so intro and outro may be the same clip.
func (l *JingleLibrary) Pick(intro, outro string) (introPath, outroPath string, err error) {
	names, err := l.List()
	if err != nil {
		return "", "", &PipelineError{Stage: StageJingles, Err: err}
	}
	if (intro == RandomJingle || outro == RandomJingle) && len(names) < 2 {
		return "", "", &ConfigurationError{
			Stage:   StageJingles,
			Message: fmt.Sprintf("need at least 2 jingle files in %q for random selection, found %d", l.dir, len(names)),
		}
	}

	resolve := func(slot string) (string, error) {
		if slot == RandomJingle {
			l.mu.Lock()
			name := names[l.rng.IntN(len(names))]
			l.mu.Unlock()
			return filepath.Join(l.dir, name), nil
		}
		name := filepath.Base(slot)
		if !slices.Contains(names, name) {
			return "", &ConfigurationError{
				Stage:   StageJingles,
				Message: fmt.Sprintf("jingle %q not found in %q", slot, l.dir),
			}
		}
		return filepath.Join(l.dir, name), nil
	}

	if introPath, err = resolve(intro); err != nil {
		return "", "", err
	}
	if outroPath, err = resolve(outro); err != nil {
		return "", "", err
	}
	return introPath, outroPath, nil
}

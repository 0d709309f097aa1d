// ABOUTME: Collision-free display-name allocator backed by a fixed vocabulary.
// ABOUTME: Tracks names in use so concurrent bot instances never share one.

package names

import (
	"fmt"
	"math/rand/v2"
	"os"
	"sync"

	"github.com/BurntSushi/toml"

	_ "embed"
)

// maxNameLen is the server-imposed username limit.
const maxNameLen = 16

// maxAttempts bounds collision retries before falling back to the
// guaranteed-unique PlayerNNNNN form.
const maxAttempts = 100

//go:embed vocab.toml
var embeddedVocab []byte

// Vocabulary is the word material names are composed from. A default set is
// embedded; deployments may override it with an on-disk TOML file.
type Vocabulary struct {
	Bases       []string `toml:"bases"`
	Adjectives  []string `toml:"adjectives"`
	Suffixes    []string `toml:"suffixes"`
	Decorations []string `toml:"decorations"`
}

type vocabFile struct {
	Names Vocabulary `toml:"names"`
}

// DefaultVocabulary returns the embedded word set.
func DefaultVocabulary() Vocabulary {
	var f vocabFile
	// The embedded file is validated by tests; a decode failure here is a
	// build defect, not a runtime condition.
	if err := toml.Unmarshal(embeddedVocab, &f); err != nil {
		panic(fmt.Sprintf("names: embedded vocabulary is invalid: %v", err))
	}
	return f.Names
}

// LoadVocabulary reads a vocabulary override from a TOML file.
func LoadVocabulary(path string) (Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Vocabulary{}, fmt.Errorf("reading vocabulary file: %w", err)
	}
	var f vocabFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return Vocabulary{}, fmt.Errorf("parsing vocabulary file: %w", err)
	}
	if err := f.Names.validate(); err != nil {
		return Vocabulary{}, fmt.Errorf("validating vocabulary file: %w", err)
	}
	return f.Names, nil
}

func (v Vocabulary) validate() error {
	if len(v.Bases) == 0 {
		return fmt.Errorf("names.bases must not be empty")
	}
	if len(v.Adjectives) == 0 {
		return fmt.Errorf("names.adjectives must not be empty")
	}
	if len(v.Suffixes) == 0 {
		return fmt.Errorf("names.suffixes must not be empty")
	}
	return nil
}

// Allocator hands out display names that are unique among current
// allocations. Safe for concurrent use.
type Allocator struct {
	mu    sync.Mutex
	inUse map[string]struct{}
	vocab Vocabulary
}

// New creates an allocator over the given vocabulary.
func New(vocab Vocabulary) *Allocator {
	return &Allocator{
		inUse: make(map[string]struct{}),
		vocab: vocab,
	}
}

// Allocate produces a fresh name of at most 16 characters and marks it in
// use. After too many collisions it falls back to Player<5 digits>.
func (a *Allocator) Allocate() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	for range maxAttempts {
		name := a.compose()
		if _, taken := a.inUse[name]; taken {
			continue
		}
		a.inUse[name] = struct{}{}
		return name
	}

	for {
		name := fmt.Sprintf("Player%05d", 10000+rand.IntN(90000))
		if _, taken := a.inUse[name]; taken {
			continue
		}
		a.inUse[name] = struct{}{}
		return name
	}
}

// Release frees a name for reuse. Releasing a name that is not held is a
// no-op.
func (a *Allocator) Release(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.inUse, name)
}

// InUse reports whether a name is currently allocated.
func (a *Allocator) InUse(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.inUse[name]
	return ok
}

// compose builds one candidate name from a weighted template choice:
// base+suffix (40%), adjective+base (30%), base+digits (30%), with a 10%
// chance of a trailing decoration. Caller holds the lock (rand/v2 is
// goroutine-safe; the lock is for the in-use set).
func (a *Allocator) compose() string {
	base := pick(a.vocab.Bases)

	var name string
	switch roll := rand.IntN(100); {
	case roll < 40:
		name = clip(base + pick(a.vocab.Suffixes))
	case roll < 70:
		name = clip(pick(a.vocab.Adjectives) + base)
	default:
		name = clip(base + fmt.Sprintf("%d", 1+rand.IntN(9999)))
	}

	if len(a.vocab.Decorations) > 0 && rand.IntN(10) == 0 {
		deco := pick(a.vocab.Decorations)
		if len(name)+len(deco) <= maxNameLen {
			name += deco
		}
	}
	return name
}

func pick(words []string) string {
	return words[rand.IntN(len(words))]
}

// clip truncates a composed name to the server limit.
func clip(name string) string {
	if len(name) > maxNameLen {
		return name[:maxNameLen]
	}
	return name
}

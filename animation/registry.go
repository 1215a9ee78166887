// Package animation holds the read-only table of bitmap animations that the
// display can show, keyed by a 1-based animation ID.
package animation

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
)

// ID selects an animation. Valid IDs are 1..Count().
type ID uint8

// FrameSet is an ordered sequence of encoded (BMP) frames.
type FrameSet struct {
	Name   string
	Frames [][]byte
}

// Len returns the number of frames in the set.
func (fs FrameSet) Len() int {
	return len(fs.Frames)
}

// Frame returns the encoded frame at i modulo the set length, so any counter
// value yields a valid frame. It returns nil for an empty set.
func (fs FrameSet) Frame(i uint) []byte {
	if len(fs.Frames) == 0 {
		return nil
	}
	return fs.Frames[i%uint(len(fs.Frames))]
}

// Registry maps animation IDs to frame sets. It is built once and never
// mutated afterwards.
type Registry struct {
	sets []FrameSet
}

var (
	errNoFrames  = errors.New("animation: frame set is empty")
	errNoSets    = errors.New("animation: registry is empty")
	errTooMany   = errors.New("animation: more than 255 frame sets")
	errBadFrames = errors.New("animation: no frame-N.bmp files")
)

// NewRegistry builds a registry. sets[0] becomes ID 1.
func NewRegistry(sets ...FrameSet) (*Registry, error) {
	if len(sets) == 0 {
		return nil, errNoSets
	}
	if len(sets) > 255 {
		return nil, errTooMany
	}
	for i := range sets {
		if sets[i].Len() == 0 {
			return nil, fmt.Errorf("%w: id %d (%s)", errNoFrames, i+1, sets[i].Name)
		}
	}
	cp := make([]FrameSet, len(sets))
	copy(cp, sets)
	return &Registry{sets: cp}, nil
}

// Count returns the number of registered animations.
func (r *Registry) Count() int {
	return len(r.sets)
}

// Valid reports whether id names a registered animation.
func (r *Registry) Valid(id ID) bool {
	return id >= 1 && int(id) <= len(r.sets)
}

// Lookup returns the frame set for id.
func (r *Registry) Lookup(id ID) (FrameSet, bool) {
	if !r.Valid(id) {
		return FrameSet{}, false
	}
	return r.sets[id-1], true
}

// Frames embedded at build time. Each directory is one animation; files are
// named frame-N.bmp.
//
//go:embed frames
var assets embed.FS

// Builtin animation directories in ID order.
var builtinOrder = []string{
	"nooo",     // 1
	"reaction", // 2
	"no-shake", // 3
	"smile",    // 4
}

var builtin *Registry

func init() {
	sets := make([]FrameSet, 0, len(builtinOrder))
	for _, name := range builtinOrder {
		set, err := LoadFrameSet(assets, path.Join("frames", name))
		if err != nil {
			panic(err)
		}
		sets = append(sets, set)
	}
	r, err := NewRegistry(sets...)
	if err != nil {
		panic(err)
	}
	builtin = r
}

// Builtin returns the registry of animations compiled into the firmware.
func Builtin() *Registry {
	return builtin
}

// LoadFrameSet reads every frame-N.bmp file in dir, ordered by N.
func LoadFrameSet(fsys fs.FS, dir string) (FrameSet, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return FrameSet{}, err
	}

	type numbered struct {
		n    int
		name string
	}
	var files []numbered
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n, ok := FrameNumber(e.Name())
		if !ok {
			continue
		}
		files = append(files, numbered{n: n, name: e.Name()})
	}
	if len(files) == 0 {
		return FrameSet{}, fmt.Errorf("%w in %s", errBadFrames, dir)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].n < files[j].n })

	set := FrameSet{Name: path.Base(dir), Frames: make([][]byte, 0, len(files))}
	for _, f := range files {
		data, err := fs.ReadFile(fsys, path.Join(dir, f.name))
		if err != nil {
			return FrameSet{}, err
		}
		set.Frames = append(set.Frames, data)
	}
	return set, nil
}

// FrameNumber extracts N from a "frame-N.bmp" file name (case-insensitive).
func FrameNumber(name string) (int, bool) {
	lower := strings.ToLower(name)
	if !strings.HasPrefix(lower, "frame-") || !strings.HasSuffix(lower, ".bmp") {
		return 0, false
	}
	digits := lower[len("frame-") : len(lower)-len(".bmp")]
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

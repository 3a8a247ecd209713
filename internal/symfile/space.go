package symfile

import (
	"fmt"
	"sync"
)

// Space is a registry of live images, modeled on a debugger's notion of
// an address space. A session can hold several spaces; all of them share
// the session's trace state.
type Space struct {
	session *Session
	id      int

	mu     sync.RWMutex
	images []*Image
}

// ID returns the space's session-local identifier.
func (sp *Space) ID() int { return sp.id }

// Session returns the owning session.
func (sp *Space) Session() *Session { return sp.session }

// AddImage registers a new image. The image starts with no loader;
// callers attach one with SetLoaderOps.
func (sp *Space) AddImage(name, path string) *Image {
	img := &Image{space: sp, name: name, path: path}

	sp.mu.Lock()
	sp.images = append(sp.images, img)
	sp.mu.Unlock()

	sp.session.log.Debug().Int("space", sp.id).Str("image", name).Msg("image added")
	return img
}

// Images returns a snapshot of the registered images.
func (sp *Space) Images() []*Image {
	sp.mu.RLock()
	defer sp.mu.RUnlock()
	out := make([]*Image, len(sp.images))
	copy(out, sp.images)
	return out
}

// FindImage returns the image with the given name, or nil.
func (sp *Space) FindImage(name string) *Image {
	sp.mu.RLock()
	defer sp.mu.RUnlock()
	for _, img := range sp.images {
		if img.name == name {
			return img
		}
	}
	return nil
}

// RemoveImage unregisters an image. Trace wrappers are removed first so
// no side entry outlives its image.
func (sp *Space) RemoveImage(img *Image) error {
	sp.session.detachImage(img)

	sp.mu.Lock()
	defer sp.mu.Unlock()
	for i, have := range sp.images {
		if have == img {
			sp.images = append(sp.images[:i], sp.images[i+1:]...)
			sp.session.log.Debug().Int("space", sp.id).Str("image", img.name).Msg("image removed")
			return nil
		}
	}
	return fmt.Errorf("symfile: image %q not registered in space %d", img.name, sp.id)
}

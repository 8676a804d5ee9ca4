// Package templates renders the HTML fragments the portal streams to the
// browser. The fragments ship embedded; a directory of fragments may
// replace them for development.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"os"
	"sync"
)

//go:embed fragments/*.html
var embedded embed.FS

const pattern = "*.html"

// dict builds a map from alternating keys and values so one template can
// hand several values to another.
func dict(pairs ...any) (map[string]any, error) {
	if len(pairs)%2 == 1 {
		return nil, fmt.Errorf("dict: odd number of arguments")
	}
	m := make(map[string]any, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			return nil, fmt.Errorf("dict: key %v is not a string", pairs[i])
		}
		m[key] = pairs[i+1]
	}
	return m, nil
}

func parse(fsys fs.FS) (*template.Template, error) {
	return template.New("fragments").Funcs(template.FuncMap{"dict": dict}).ParseFS(fsys, pattern)
}

// Renderer executes named fragments. It is safe for concurrent use.
type Renderer struct {
	mu   sync.RWMutex
	tmpl *template.Template
}

// New returns a renderer over the embedded fragments.
func New() (*Renderer, error) {
	sub, err := fs.Sub(embedded, "fragments")
	if err != nil {
		return nil, err
	}
	t, err := parse(sub)
	if err != nil {
		return nil, err
	}
	return &Renderer{tmpl: t}, nil
}

// NewFromDir returns a renderer over the fragments in dir.
func NewFromDir(dir string) (*Renderer, error) {
	r := &Renderer{}
	if err := r.Reload(dir); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the fragments in dir. On error the current set is kept.
func (r *Renderer) Reload(dir string) error {
	t, err := parse(os.DirFS(dir))
	if err != nil {
		return fmt.Errorf("templates: load %s: %w", dir, err)
	}
	r.mu.Lock()
	r.tmpl = t
	r.mu.Unlock()
	return nil
}

// RenderToBuffer executes fragment name into buf.
func (r *Renderer) RenderToBuffer(buf *bytes.Buffer, name string, data any) error {
	r.mu.RLock()
	t := r.tmpl
	r.mu.RUnlock()
	return t.ExecuteTemplate(buf, name, data)
}

// Render executes fragment name.
func (r *Renderer) Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.RenderToBuffer(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// MustRender is Render for fragments known to exist; it panics on error.
func (r *Renderer) MustRender(name string, data any) string {
	out, err := r.Render(name, data)
	if err != nil {
		panic(err)
	}
	return out
}

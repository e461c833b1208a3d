package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

//go:embed templates/*.html
var embeddedTemplates embed.FS

const layoutTemplate = "layout.html"

var templateFuncs = template.FuncMap{
	"formatDate": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("Jan 2, 2006")
	},
}

// templateSet holds one parsed template per page, each combined with the
// shared layout. Pages come from dir when set, else from the embedded defaults.
type templateSet struct {
	dir    string
	pages  map[string]*template.Template
	mutex  sync.RWMutex
	logger *logrus.Logger
}

func newTemplateSet(dir string, logger *logrus.Logger) (*templateSet, error) {
	ts := &templateSet{dir: dir, logger: logger}
	if err := ts.load(); err != nil {
		return nil, err
	}
	return ts, nil
}

func (ts *templateSet) source() (fs.FS, error) {
	if ts.dir == "" {
		return fs.Sub(embeddedTemplates, "templates")
	}
	if _, err := os.Stat(ts.dir); err != nil {
		return nil, fmt.Errorf("templates directory: %w", err)
	}
	return os.DirFS(ts.dir), nil
}

// load parses every page; the current set is kept if parsing fails.
func (ts *templateSet) load() error {
	fsys, err := ts.source()
	if err != nil {
		return err
	}

	files, err := fs.Glob(fsys, "*.html")
	if err != nil {
		return err
	}

	pages := make(map[string]*template.Template)
	for _, file := range files {
		if file == layoutTemplate {
			continue
		}
		tmpl, err := template.New(file).Funcs(templateFuncs).ParseFS(fsys, layoutTemplate, file)
		if err != nil {
			return fmt.Errorf("error parsing template %s: %w", file, err)
		}
		pages[file] = tmpl
	}

	if len(pages) == 0 {
		return fmt.Errorf("no page templates found")
	}

	ts.mutex.Lock()
	ts.pages = pages
	ts.mutex.Unlock()

	ts.logger.WithField("pages", len(pages)).Debug("Templates loaded")
	return nil
}

// render executes a page into a buffer first so that a template error still
// yields a clean 500.
func (ts *templateSet) render(w http.ResponseWriter, name string, status int, data any) error {
	ts.mutex.RLock()
	tmpl, ok := ts.pages[name]
	ts.mutex.RUnlock()
	if !ok {
		return fmt.Errorf("template %s not found", name)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return err
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

func isTemplateFile(name string) bool {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	return strings.HasSuffix(base, ".html") && !strings.HasPrefix(base, ".")
}

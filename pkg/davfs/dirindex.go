package davfs

import (
	"html/template"
	"net/http"
	"net/url"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/valyala/bytebufferpool"

	"davbridge/pkg/logger"
)

const listingTimeFormat = "2006-01-02 15:04"

var listingTmpl = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Index of {{.Path}}</title>
<style>
body { font-family: sans-serif; }
table { border-collapse: collapse; }
td, th { padding: 0 1em 0 0; text-align: left; }
td.size { text-align: right; }
</style>
</head>
<body>
<h1>Index of {{.Path}}</h1>
<table>
<tr><th>Name</th><th>Last modified</th><th>Size</th></tr>
{{- if .Parent}}
<tr><td><a href="{{.Parent}}">Parent Directory</a></td><td></td><td class="size">-</td></tr>
{{- end}}
{{- range .Entries}}
<tr><td><a href="{{.Href}}">{{.Name}}</a></td><td>{{.Modified}}</td><td class="size">{{.Size}}</td></tr>
{{- end}}
</table>
</body>
</html>
`))

type listing struct {
	Path    string
	Parent  string
	Entries []listingEntry
}

type listingEntry struct {
	Name     string
	Href     string
	Modified string
	Size     string
}

// serveDirectory handles GET and HEAD on collections: the index file when
// configured and present, else a listing when enabled, else 404. It returns
// false when the path is not a directory.
func (h *Handler) serveDirectory(w http.ResponseWriter, r *http.Request, prefix string) bool {
	name, ok := stripPrefix(r.URL.Path, prefix)
	if !ok {
		return false
	}
	ctx := r.Context()
	fi, err := h.fs.Stat(ctx, name)
	if err != nil || !fi.IsDir() {
		return false
	}

	if h.index != "" && h.serveIndexFile(w, r, path.Join("/", name, h.index)) {
		return true
	}
	if !h.autoIndex {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return true
	}
	h.writeListing(w, r, name)
	return true
}

func (h *Handler) serveIndexFile(w http.ResponseWriter, r *http.Request, name string) bool {
	ctx := r.Context()
	fi, err := h.fs.Stat(ctx, name)
	if err != nil || fi.IsDir() {
		return false
	}
	f, err := h.fs.OpenFile(ctx, name, os.O_RDONLY, 0)
	if err != nil {
		return false
	}
	defer f.Close()
	http.ServeContent(w, r, fi.Name(), fi.ModTime(), f)
	return true
}

// escapePath percent-encodes p for an href; html/template leaves '#' and
// '?' alone in URL attributes.
func escapePath(p string) string {
	return (&url.URL{Path: p}).EscapedPath()
}

func (h *Handler) writeListing(w http.ResponseWriter, r *http.Request, name string) {
	f, err := h.fs.OpenFile(r.Context(), name, os.O_RDONLY, 0)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}
	infos, err := f.Readdir(-1)
	_ = f.Close()
	if err != nil {
		logger.Warn("dav_listing_failed", "path", r.URL.Path, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].IsDir() != infos[j].IsDir() {
			return infos[i].IsDir()
		}
		return infos[i].Name() < infos[j].Name()
	})

	base := r.URL.Path
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	l := listing{Path: base}
	if base != "/" {
		parent := path.Dir(strings.TrimSuffix(base, "/"))
		if !strings.HasSuffix(parent, "/") {
			parent += "/"
		}
		l.Parent = escapePath(parent)
	}
	for _, fi := range infos {
		e := listingEntry{
			Name:     fi.Name(),
			Href:     escapePath(base + fi.Name()),
			Modified: fi.ModTime().In(h.loc).Format(listingTimeFormat),
			Size:     "-",
		}
		if fi.IsDir() {
			e.Name += "/"
			e.Href = escapePath(base + fi.Name() + "/")
		} else {
			e.Size = humanize.Bytes(uint64(fi.Size()))
		}
		l.Entries = append(l.Entries, e)
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if err := listingTmpl.Execute(buf, l); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(buf.Bytes())
	}
}

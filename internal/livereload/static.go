package livereload

import (
	"bytes"
	"io"
	"net/http"
	"path"
	"strings"
)

// ClientScriptPath is where the browser client is served from.
const ClientScriptPath = "/__sitepipe/livereload.js"

var scriptTag = []byte(`<script src="` + ClientScriptPath + `"></script>`)

// InjectScript inserts the live-reload client tag before the last </body>.
// Documents without a body end get the tag appended.
func InjectScript(doc []byte) []byte {
	i := bytes.LastIndex(bytes.ToLower(doc), []byte("</body>"))
	if i < 0 {
		return append(append([]byte{}, doc...), scriptTag...)
	}
	out := make([]byte, 0, len(doc)+len(scriptTag))
	out = append(out, doc[:i]...)
	out = append(out, scriptTag...)
	return append(out, doc[i:]...)
}

// staticHandler serves the output directory. HTML documents pass through
// InjectScript; everything else is served as is.
type staticHandler struct {
	root  http.FileSystem
	files http.Handler
}

func newStaticHandler(dir string) *staticHandler {
	root := http.Dir(dir)
	return &staticHandler{root: root, files: http.FileServer(root)}
}

func (s *staticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		name := path.Clean("/" + r.URL.Path)
		if strings.HasSuffix(r.URL.Path, "/") {
			name = path.Join(name, "index.html")
		}
		if strings.EqualFold(path.Ext(name), ".html") && s.serveHTML(w, r, name) {
			return
		}
	}
	s.files.ServeHTTP(w, r)
}

func (s *staticHandler) serveHTML(w http.ResponseWriter, r *http.Request, name string) bool {
	f, err := s.root.Open(name)
	if err != nil {
		return false
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		return false
	}
	doc, err := io.ReadAll(f)
	if err != nil {
		return false
	}
	http.ServeContent(w, r, name, info.ModTime(), bytes.NewReader(InjectScript(doc)))
	return true
}

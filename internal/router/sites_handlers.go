package router

import (
	"net/http"
	"strings"

	"github.com/localdev/hostd/internal/emuerr"
	"github.com/localdev/hostd/internal/storage/sites"
)

func (h *handlers) sitesServe(w http.ResponseWriter, r *http.Request) {
	binding := h.gw.Sites
	if binding == nil {
		writeError(w, emuerr.NewStorage(emuerr.CodeNoSuchKey, "no sites binding configured"))
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/sites/")
	asset, ok := binding.Manifest[path]
	if !ok {
		writeError(w, emuerr.NewStorage(emuerr.CodeNoSuchKey, "no such asset"))
		return
	}
	http.ServeFile(w, r, sites.Root(binding.Root, asset.Path))
}

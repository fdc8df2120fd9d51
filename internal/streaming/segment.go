package streaming

import (
	"errors"
	"fmt"
	"net/http"

	"hls-gateway/internal/assets"
)

// serveLocated streams an authorized file. http.ServeContent handles
// conditional requests and single-range requests from players.
func serveLocated(w http.ResponseWriter, r *http.Request, st assets.Store, loc located) error {
	obj, err := st.Open(r.Context(), loc.key)
	if errors.Is(err, assets.ErrNotFound) {
		return fmt.Errorf("segment %s: %w", loc.key, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", loc.key, err)
	}
	defer obj.Close()

	h := w.Header()
	h.Set("Content-Type", contentTypeFor(loc.filename))
	h.Set("Content-Disposition", "inline")
	http.ServeContent(w, r, loc.filename, obj.ModTime(), obj)
	return nil
}

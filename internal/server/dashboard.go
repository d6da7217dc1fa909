package server

import (
	"net/http"

	"github.com/philjestin/studiomode/internal/index"
	"github.com/philjestin/studiomode/internal/journal"
)

// Dashboard serves the feature index and the journal.
type Dashboard struct {
	Index   *index.FeatureIndex
	Journal *journal.Journal
}

// Data is the /data payload.
type Data struct {
	Index   index.Index `json:"index"`
	Journal []string    `json:"journal"`
}

// Handler routes GET /data.
func (d *Dashboard) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /data", func(w http.ResponseWriter, _ *http.Request) {
		idx, err := d.Index.Load()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		entries, err := d.Journal.Entries()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if entries == nil {
			entries = []string{}
		}
		writeJSON(w, Data{Index: idx, Journal: entries})
	})
	return mux
}

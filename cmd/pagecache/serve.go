package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	pagecache "github.com/Aazib-Ai/UOLink-App-sub002"
	"github.com/Aazib-Ai/UOLink-App-sub002/cache"
)

var portFlag int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the cache inspection and demo HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := getOptions()
		if err != nil {
			return err
		}
		pc, err := pagecache.New(opts)
		if err != nil {
			return err
		}
		defer pc.Close()

		addr := fmt.Sprintf(":%d", portFlag)
		log.Info().Str("addr", addr).Msg("Starting page cache server")
		return http.ListenAndServe(addr, newRouter(pc))
	},
}

func init() {
	serveCmd.Flags().IntVar(&portFlag, "port", 8080, "Port to listen on")
}

type navigateRequest struct {
	Route       string `json:"route"`
	From        string `json:"from"`
	PageKind    string `json:"pageKind"`
	ContentKind string `json:"contentKind"`
}

type navigateResponse struct {
	UsedCache                  bool            `json:"usedCache"`
	PageData                   json.RawMessage `json:"pageData,omitempty"`
	PageState                  interface{}     `json:"pageState,omitempty"`
	DisplayTimeMs              float64         `json:"displayTimeMs"`
	BackgroundRefreshScheduled bool            `json:"backgroundRefreshScheduled"`
}

// newRouter exposes the subsystem over HTTP for demos and inspection.
func newRouter(pc *pagecache.PageCache) http.Handler {
	r := chi.NewRouter()

	r.Post("/navigate", func(w http.ResponseWriter, req *http.Request) {
		var nav navigateRequest
		if err := json.NewDecoder(req.Body).Decode(&nav); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		res := pc.Guard.HandleNavigation(req.Context(), nav.Route, nav.From,
			cache.ParsePageKind(nav.PageKind), cache.ParseContentKind(nav.ContentKind))
		writeJSON(w, navigateResponse{
			UsedCache:                  res.UsedCache,
			PageData:                   res.PageData,
			PageState:                  res.PageState,
			DisplayTimeMs:              float64(res.DisplayTime) / float64(time.Millisecond),
			BackgroundRefreshScheduled: res.BackgroundRefreshScheduled,
		})
	})

	r.Put("/routes/*", func(w http.ResponseWriter, req *http.Request) {
		route := chi.URLParam(req, "*")
		var payload json.RawMessage
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		pc.Guard.CacheFreshData(req.Context(), route, payload,
			cache.ParsePageKind(req.URL.Query().Get("pageKind")),
			cache.ParseContentKind(req.URL.Query().Get("contentKind")))
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/routes/*", func(w http.ResponseWriter, req *http.Request) {
		route := chi.URLParam(req, "*")
		writeJSON(w, map[string]interface{}{
			"route":  route,
			"cached": pc.Guard.HasCachedData(req.Context(), route),
		})
	})

	r.Delete("/routes/*", func(w http.ResponseWriter, req *http.Request) {
		pc.Guard.InvalidateRoute(req.Context(), chi.URLParam(req, "*"))
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
		stats := map[string]interface{}{
			"cache":        pc.Cache.Stats(),
			"refresh":      pc.Refresh.GetStats(),
			"recentRoutes": pc.Cache.RecentRoutes(),
			"offline":      pc.Cache.OfflineMode(),
		}
		if quota := pc.Cache.CheckStorageQuota(); quota != nil {
			stats["quota"] = quota
		}
		if err := pc.Cache.LastError(); err != nil {
			stats["lastError"] = err.Error()
		}
		writeJSON(w, stats)
	})

	r.Post("/offline", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Offline bool `json:"offline"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		pc.Guard.SetOfflineMode(body.Offline)
		w.WriteHeader(http.StatusNoContent)
	})

	r.Post("/cleanup", func(w http.ResponseWriter, req *http.Request) {
		pressure := req.URL.Query().Get("pressure") == "true"
		evicted := pc.Cache.Cleanup(req.Context(), pressure)
		writeJSON(w, map[string]interface{}{"evicted": evicted})
	})

	return r
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Could not write response")
	}
}

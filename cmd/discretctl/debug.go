package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/discretlib/discret"
	"github.com/discretlib/discret/internal/uid"
)

var debugCmd = &cobra.Command{
	Use:   "debug <addr>",
	Short: "Serve a loopback-only /metrics and /debug/rooms HTTP surface for local inspection",
	Args:  cobra.ExactArgs(1),
	RunE:  runDebug,
}

func newDebugRouter(h *discret.Handle) *chi.Mux {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/debug/rooms", func(w http.ResponseWriter, req *http.Request) {
		rooms, err := h.Rooms(req.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(rooms)
	})
	r.Get("/debug/rooms/{room}/fingerprint", func(w http.ResponseWriter, req *http.Request) {
		room, err := uid.Parse(chi.URLParam(req, "room"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		entity := req.URL.Query().Get("entity")
		if entity == "" {
			http.Error(w, "missing entity query parameter", http.StatusBadRequest)
			return
		}
		fp, err := h.Fingerprint(req.Context(), room, entity)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"entity": entity, "fingerprint": fp})
	})
	return r
}

func runDebug(cmd *cobra.Command, args []string) error {
	h, err := sharedHandle(cmd)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "debug surface listening on %s\n", args[0])
	return http.ListenAndServe(args[0], newDebugRouter(h))
}

package main

import (
	"encoding/json"
	"flag"
	"net/http"
	"os"

	"go.uber.org/zap"
)

type bookEntry struct {
	Title         string  `json:"title"`
	Pages         *int    `json:"pages"`
	Description   *string `json:"description"`
	CoverURL      *string `json:"coverUrl"`
	Category      *string `json:"category"`
	PublishedDate *string `json:"publishedDate"`
}

func main() {
	var (
		port    = flag.String("port", "9099", "port to listen on")
		data    = flag.String("data", "mock-bookinfo.json", "path to mock data file")
		apiKey  = flag.String("api-key", "", "required X-API-Key value (empty accepts any)")
		verbose = flag.Bool("log", false, "enable request logging")
	)
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	file, err := os.ReadFile(*data)
	if err != nil {
		logger.Fatal("read mock data", zap.Error(err))
	}

	var payload map[string]bookEntry
	if err := json.Unmarshal(file, &payload); err != nil {
		logger.Fatal("parse mock data", zap.Error(err))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/books", func(w http.ResponseWriter, r *http.Request) {
		if *apiKey != "" && r.Header.Get("X-API-Key") != *apiKey {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		title := r.URL.Query().Get("title")
		if *verbose {
			logger.Info("lookup", zap.String("title", title))
		}
		entry, ok := payload[title]
		if !ok {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(entry); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	addr := ":" + *port
	logger.Info("mock bookinfo listening", zap.String("addr", addr), zap.Int("entries", len(payload)))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

package internal

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const maxInspectedKeys = 500

// InspectRow describes one Badger entry.
type InspectRow struct {
	Key       string `json:"key"`
	Namespace string `json:"namespace"`
	EntityID  string `json:"entityId"`
	Timestamp string `json:"timestamp,omitempty"`
	Size      int    `json:"size"`
}

type StatsProvider func() any

// NewDebugServer serves /debug/stats and, when db is not nil, /debug/keys?prefix=.
func NewDebugServer(port int, db *badger.DB, stats StatsProvider) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/stats", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, stats())
	})
	if db != nil {
		mux.HandleFunc("/debug/keys", func(w http.ResponseWriter, r *http.Request) {
			rows, err := ScanKeys(db, r.URL.Query().Get("prefix"), maxInspectedKeys)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			writeJSON(w, rows)
		})
	}
	return &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// ScanKeys lists up to limit keys under prefix without loading values.
func ScanKeys(db *badger.DB, prefix string, limit int) ([]InspectRow, error) {
	rows := make([]InspectRow, 0)
	err := db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)) && len(rows) < limit; it.Next() {
			item := it.Item()
			rows = append(rows, DefaultMapper(string(item.KeyCopy(nil)), int(item.ValueSize())))
		}
		return nil
	})
	return rows, err
}

// DefaultMapper splits "<namespace>:<parts...>". Message keys carry their
// timestamp in nanoseconds as second part.
func DefaultMapper(key string, size int) InspectRow {
	parts := strings.Split(key, ":")
	row := InspectRow{Key: key, Namespace: parts[0], Size: size}
	if len(parts) > 1 {
		row.EntityID = parts[len(parts)-1]
	}
	if parts[0] == "msg" && len(parts) == 4 {
		if nanos, err := strconv.ParseInt(parts[2], 10, 64); err == nil {
			row.Timestamp = time.Unix(0, nanos).UTC().Format(time.RFC3339Nano)
		}
	}
	return row
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

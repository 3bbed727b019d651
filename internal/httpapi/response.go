package httpapi

import (
	"encoding/json"
	"net/http"

	"quoteaggregator/internal/fetcher"
)

// Quote is the wire form of a fetcher.Quote.
type Quote struct {
	Name       string      `json:"name"`
	Instrument string      `json:"instrument"`
	Price      json.Number `json:"price"`
	Timestamp  int64       `json:"timestamp"`
	Source     string      `json:"source"`
	Change     string      `json:"change,omitempty"`
}

type envelope struct {
	Success bool    `json:"success"`
	Data    []Quote `json:"data"`
	Error   string  `json:"error,omitempty"`
}

func toWire(q fetcher.Quote) Quote {
	return Quote{
		Name:       q.Name,
		Instrument: q.Instrument,
		Price:      json.Number(q.Price.String()),
		Timestamp:  q.ObservedAt.UnixMilli(),
		Source:     q.Source,
		Change:     q.Change(),
	}
}

func writeQuotes(w http.ResponseWriter, quotes []fetcher.Quote) {
	data := make([]Quote, 0, len(quotes))
	for _, q := range quotes {
		data = append(data, toWire(q))
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Data: []Quote{}, Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(body)
}

package hub

import "newswire/internal/news"

// Wire messages, shared by the server sessions and the relay client. The
// protocol is JSON over a persistent websocket; every server frame is tagged
// with "type", every client frame with "action". Unknown shapes are logged
// and ignored, they never close the connection.

const (
	TypeUpdate  = "update"
	TypeHistory = "history"

	ActionGetPage = "get_page"
	ActionReload  = "reload"
)

// UpdateMessage carries the items one ingestion cycle classified new,
// ascending by publication time.
type UpdateMessage struct {
	Type     string      `json:"type"`
	Count    int         `json:"count"`
	Articles []news.Item `json:"articles"`
}

// HistoryMessage is one page of persisted items, newest first.
type HistoryMessage struct {
	Type       string      `json:"type"`
	Articles   []news.Item `json:"articles"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
	TotalPages int         `json:"total_pages"`
}

// ClientCommand is an inbound control frame.
type ClientCommand struct {
	Action string `json:"action"`
	Page   int    `json:"page,omitempty"`
}

func newUpdateMessage(items []news.Item) UpdateMessage {
	return UpdateMessage{Type: TypeUpdate, Count: len(items), Articles: items}
}

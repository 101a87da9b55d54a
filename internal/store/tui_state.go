package store

import (
	"context"
	"encoding/json"
)

// KeyTUIState holds the TUI's last screen in the client state store.
const KeyTUIState = "tuiState"

// TUIState stores small UI state for restoring the last screen on relaunch.
// It is best effort: a missing or corrupt value loads as the default.
type TUIState struct {
	Version int `json:"version"`

	// View is one of: lists|list
	View string `json:"view,omitempty"`

	// ListID is the list open when View == "list".
	ListID int64 `json:"listId,omitempty"`

	ShowChat bool `json:"showChat,omitempty"`

	// RecentListIDs holds recently opened lists, newest first.
	RecentListIDs []int64 `json:"recentListIds,omitempty"`
}

const maxRecentLists = 5

// Touch records listID as the most recently opened list.
func (st *TUIState) Touch(listID int64) {
	out := []int64{listID}
	for _, id := range st.RecentListIDs {
		if id != listID && len(out) < maxRecentLists {
			out = append(out, id)
		}
	}
	st.RecentListIDs = out
}

func LoadTUIState(ctx context.Context, kv KV) (*TUIState, error) {
	raw, ok, err := kv.Get(ctx, KeyTUIState)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &TUIState{Version: 1}, nil
	}
	var st TUIState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return &TUIState{Version: 1}, nil
	}
	if st.Version == 0 {
		st.Version = 1
	}
	return &st, nil
}

func SaveTUIState(ctx context.Context, kv KV, st *TUIState) error {
	if st == nil {
		return nil
	}
	if st.Version == 0 {
		st.Version = 1
	}
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return kv.Set(ctx, KeyTUIState, string(b))
}

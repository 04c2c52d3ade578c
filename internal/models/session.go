package models

// SessionInfo is returned by the session endpoints.
type SessionInfo struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	ExpiresAt int64  `json:"expiresAt"`
	Token     string `json:"token,omitempty"`
}

// RoomSummary is one entry of the lobby room list.
type RoomSummary struct {
	RoomID      string       `json:"roomId"`
	Name        string       `json:"name"`
	OpenBetMin  int64        `json:"openBetMin"`
	BetMin      int64        `json:"betMin"`
	OwnerUserID string       `json:"ownerUserId"`
	Status      RoomStatus   `json:"status"`
	Players     []RoomPlayer `json:"players"`
}

// RoomList is the reply to GET rooms?sinceVersion=V.
type RoomList struct {
	Rooms       []RoomSummary `json:"rooms"`
	Version     int64         `json:"version"`
	NotModified bool          `json:"notModified"`
}

// CreateRoomRequest is the body of POST rooms.
type CreateRoomRequest struct {
	Name       string `json:"name"`
	OpenBetMin int64  `json:"openBetMin"`
	BetMin     int64  `json:"betMin"`
}

// SyncRecordKind tags what a SyncRecord describes.
type SyncRecordKind string

const (
	RecordSnapshot  SyncRecordKind = "snapshot"
	RecordQuickChat SyncRecordKind = "quick_chat"
	RecordAction    SyncRecordKind = "action"
)

// SyncRecord is a compact trace of something the client accepted, queued for offline replay.
type SyncRecord struct {
	RoomID    string                 `json:"room_id"`
	UserID    string                 `json:"user_id"`
	Kind      SyncRecordKind         `json:"kind"`
	Version   int64                  `json:"version,omitempty"`
	EventID   int64                  `json:"event_id,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

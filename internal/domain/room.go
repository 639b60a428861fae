package domain

import (
	"time"
)

// ParticipantInfo is a per-user membership record inside a room.
//
// Invariants: Connected implies UnreadCount == 0; Leaved implies !Connected.
type ParticipantInfo struct {
	UserID               string
	Connected            bool
	UnreadCount          int
	Leaved               bool
	WhenLeaved           *time.Time
	NotificationsEnabled bool
}

func newParticipant(userID string) *ParticipantInfo {
	return &ParticipantInfo{
		UserID:               userID,
		NotificationsEnabled: true,
	}
}

func (p *ParticipantInfo) connect() {
	p.Connected = true
	p.UnreadCount = 0
}

func (p *ParticipantInfo) disconnect() {
	p.Connected = false
}

func (p *ParticipantInfo) leave(now time.Time) {
	p.Leaved = true
	p.WhenLeaved = &now
	p.disconnect()
}

func (p *ParticipantInfo) remain() {
	p.Leaved = false
}

// ShouldNotify reports whether this participant is a notification candidate
// for a message sent by senderID.
func (p *ParticipantInfo) ShouldNotify(senderID string) bool {
	return p.UserID != senderID && p.NotificationsEnabled && !p.Connected
}

// Participants maps user IDs to their membership record. Methods are not
// synchronized; callers serialize room mutation per room.
type Participants map[string]*ParticipantInfo

// ReceiverUpdate carries a freshly bumped unread count for one receiver.
type ReceiverUpdate struct {
	UserID      string
	UnreadCount int
}

func (ps Participants) add(userID string) {
	ps[userID] = newParticipant(userID)
}

func (ps Participants) find(userID string) (*ParticipantInfo, error) {
	p, ok := ps[userID]
	if !ok {
		return nil, ErrParticipantNotFound
	}
	return p, nil
}

// Get returns the membership record for userID, if any.
func (ps Participants) Get(userID string) (*ParticipantInfo, bool) {
	p, ok := ps[userID]
	return p, ok
}

// DisconnectedReceiversBump increments the unread count of every participant
// except senderID that is not currently connected, and returns the updated
// counts. This is the fan-out primitive used on every message send.
func (ps Participants) DisconnectedReceiversBump(senderID string) []ReceiverUpdate {
	var updates []ReceiverUpdate
	for userID, p := range ps {
		if userID == senderID || p.Connected {
			continue
		}
		p.UnreadCount++
		updates = append(updates, ReceiverUpdate{UserID: userID, UnreadCount: p.UnreadCount})
	}
	return updates
}

// UsersToNotify returns participants other than senderID that have
// notifications enabled and are not connected.
func (ps Participants) UsersToNotify(senderID string) []string {
	var users []string
	for _, p := range ps {
		if p.ShouldNotify(senderID) {
			users = append(users, p.UserID)
		}
	}
	return users
}

// ConnectedCount returns the number of currently connected participants.
func (ps Participants) ConnectedCount() int {
	n := 0
	for _, p := range ps {
		if p.Connected {
			n++
		}
	}
	return n
}

// Size returns the number of participants.
func (ps Participants) Size() int {
	return len(ps)
}

// UnreadCount returns the pending unread count for userID.
func (ps Participants) UnreadCount(userID string) (int, error) {
	p, err := ps.find(userID)
	if err != nil {
		return 0, err
	}
	return p.UnreadCount, nil
}

// WhenLeaved returns the leave timestamp for userID, nil if the user never
// left the room.
func (ps Participants) WhenLeaved(userID string) (*time.Time, error) {
	p, err := ps.find(userID)
	if err != nil {
		return nil, err
	}
	return p.WhenLeaved, nil
}

// AllLeaved reports whether every participant has left the room.
func (ps Participants) AllLeaved() bool {
	for _, p := range ps {
		if !p.Leaved {
			return false
		}
	}
	return true
}

// ContainsAny reports whether any participant is in the given user ID set.
func (ps Participants) ContainsAny(userIDs map[string]struct{}) bool {
	for userID := range ps {
		if _, ok := userIDs[userID]; ok {
			return true
		}
	}
	return false
}

// Room is a two-party conversation thread anchored to the origin reference
// that spawned it. The participant map is owned by the room repository and
// mutated only through Room methods.
type Room struct {
	ID            string
	Name          string
	ReferenceID   string
	Participants  Participants
	LastMessage   string
	LastMessageAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     *time.Time
}

// NewRoom builds a room with two membership records, both initially
// disconnected with notifications enabled. Self-chat is rejected by the
// validator before this is called.
func NewRoom(name, referenceID, senderID, receiverID string) *Room {
	participants := make(Participants, 2)
	participants.add(senderID)
	participants.add(receiverID)

	return &Room{
		Name:          name,
		ReferenceID:   referenceID,
		Participants:  participants,
		LastMessageAt: time.Now().UTC(),
	}
}

// Enter flips the participant to connected and drains their unread count.
func (r *Room) Enter(userID string) error {
	p, err := r.Participants.find(userID)
	if err != nil {
		return err
	}
	p.connect()
	return nil
}

// Exit marks the participant disconnected. The unread count stays as last
// set so that a reconnect can reconcile it.
func (r *Room) Exit(userID string) error {
	p, err := r.Participants.find(userID)
	if err != nil {
		return err
	}
	p.disconnect()
	return nil
}

// Leave records that the participant left the room and disconnects them.
func (r *Room) Leave(userID string) error {
	p, err := r.Participants.find(userID)
	if err != nil {
		return err
	}
	p.leave(time.Now().UTC())
	return nil
}

// Remain clears the leaved flag so the room becomes visible to the user
// again without creating a duplicate.
func (r *Room) Remain(userID string) error {
	p, err := r.Participants.find(userID)
	if err != nil {
		return err
	}
	p.remain()
	return nil
}

// ToggleNotification flips the participant's notification setting.
func (r *Room) ToggleNotification(userID string) error {
	p, err := r.Participants.find(userID)
	if err != nil {
		return err
	}
	p.NotificationsEnabled = !p.NotificationsEnabled
	return nil
}

// ReactivateReceivers clears the leaved flag of every participant except
// senderID that had left, and reports whether anything changed. Sending into
// a room the peer has left makes the thread reappear for them.
func (r *Room) ReactivateReceivers(senderID string) bool {
	changed := false
	for userID, p := range r.Participants {
		if userID != senderID && p.Leaved {
			p.remain()
			changed = true
		}
	}
	return changed
}

// UpdateLastMessage refreshes the room metadata after a message arrived.
func (r *Room) UpdateLastMessage(content string, at time.Time) {
	r.LastMessage = content
	r.LastMessageAt = at
}

// AllLeaved reports whether every participant has left; the room is then
// soft-deleted.
func (r *Room) AllLeaved() bool {
	return r.Participants.AllLeaved()
}

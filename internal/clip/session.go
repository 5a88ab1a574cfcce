package clip

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"clipsync-server/internal/blob"
	"clipsync-server/internal/model"
	"clipsync-server/internal/token"
)

// Limits bound what one session may accept.
type Limits struct {
	MaxTextBytes    int
	MaxFileBytes    int64
	MaxSessionBytes int64
	MaxItems        int
}

func DefaultLimits() Limits {
	return Limits{
		MaxTextBytes:    64 * 1024,
		MaxFileBytes:    25 * 1024 * 1024,
		MaxSessionBytes: 100 * 1024 * 1024,
		MaxItems:        200,
	}
}

const (
	EventItemAdded    = "item-added"
	EventItemRemoved  = "item-removed"
	EventSessionEnded = "session-ended"
)

// Event is the broadcast envelope every member receives for an
// accepted mutation. Ref is the originator's provisional id, opaque to
// everyone else.
type Event struct {
	Type   string      `json:"type"`
	Item   *model.Item `json:"item,omitempty"`
	ItemID string      `json:"itemId,omitempty"`
	Ref    string      `json:"ref,omitempty"`
}

// Session holds one sharing channel's authoritative state. All
// mutations funnel through its mutex, which is what guarantees that
// every member observes events in sequence order and that blob release
// never races a late submit.
type Session struct {
	id        string
	createdAt int64
	expiresAt int64

	limits Limits
	signer *token.Signer
	now    func() time.Time

	mu      sync.Mutex
	ended   bool
	seq     int64
	items   *ItemStore
	staging *blob.Staging
	hub     *Hub
}

func newSession(id string, now time.Time, ttl time.Duration, limits Limits, signer *token.Signer, clock func() time.Time) *Session {
	return &Session{
		id:        id,
		createdAt: now.UnixMilli(),
		expiresAt: now.Add(ttl).UnixMilli(),
		limits:    limits,
		signer:    signer,
		now:       clock,
		items:     NewItemStore(),
		staging:   blob.NewStaging(),
		hub:       NewHub(),
	}
}

func (s *Session) ID() string { return s.id }

// ExpiresAt is fixed at creation; activity never extends it.
func (s *Session) ExpiresAt() int64 { return s.expiresAt }

func (s *Session) CreatedAt() int64 { return s.createdAt }

func (s *Session) Info() model.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.SessionInfo{
		ID:        s.id,
		CreatedAt: s.createdAt,
		ExpiresAt: s.expiresAt,
		ItemCount: s.items.LiveCount(),
		Members:   s.hub.Len(),
	}
}

// liveLocked rejects commands once the session has ended. Callers hold mu.
func (s *Session) liveLocked() error {
	if s.ended {
		return ConflictError("session has ended")
	}
	return nil
}

// Attach subscribes a new member and returns the full ordered item log
// so the device catches up; everything after the snapshot arrives as
// deltas on the subscriber. Snapshot and subscription happen under the
// session lock so no in-flight append can fall between them.
func (s *Session) Attach() (*Subscriber, []model.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.liveLocked(); err != nil {
		return nil, nil, err
	}
	sub := s.hub.Subscribe()
	return sub, s.items.Snapshot(), nil
}

// Detach removes the member. Idempotent; the item log is untouched and
// mutations the device already got accepted stay accepted.
func (s *Session) Detach(sub *Subscriber) {
	s.hub.Unsubscribe(sub)
}

func (s *Session) Members() int {
	return s.hub.Len()
}

// SubmitText appends a text item and broadcasts it to every member,
// the originator included, carrying the server-assigned sequence.
func (s *Session) SubmitText(content, ref string) (model.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.liveLocked(); err != nil {
		return model.Item{}, err
	}
	if strings.TrimSpace(content) == "" {
		return model.Item{}, InvalidInputError("text content is empty")
	}
	if len(content) > s.limits.MaxTextBytes {
		return model.Item{}, TooLargeError("text exceeds size limit")
	}
	if s.items.LiveCount() >= s.limits.MaxItems {
		return model.Item{}, TooLargeError("session item limit reached")
	}

	s.seq++
	it := model.Item{
		ID:        uuid.NewString(),
		Seq:       s.seq,
		Kind:      model.KindText,
		Content:   content,
		CreatedAt: s.now().UnixMilli(),
	}
	s.items.Append(it)
	s.broadcastLocked(Event{Type: EventItemAdded, Item: &it, Ref: ref})
	return it, nil
}

// SubmitFile stages the payload and appends a file item atomically. A
// declared size over the ceiling is rejected before a single byte is
// staged; a reader that overruns its declared size stages nothing.
func (s *Session) SubmitFile(name, mimeType string, size int64, r io.Reader, ref string) (model.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.liveLocked(); err != nil {
		return model.Item{}, err
	}
	if name == "" || size < 0 {
		return model.Item{}, InvalidInputError("malformed file metadata")
	}
	if size > s.limits.MaxFileBytes {
		return model.Item{}, TooLargeError("file exceeds size limit")
	}
	if s.items.FileBytes()+size > s.limits.MaxSessionBytes {
		return model.Item{}, TooLargeError("session storage limit reached")
	}
	if s.items.LiveCount() >= s.limits.MaxItems {
		return model.Item{}, TooLargeError("session item limit reached")
	}

	handle, staged, err := s.staging.Stage(r, size)
	if err != nil {
		if errors.Is(err, blob.ErrTooLarge) {
			return model.Item{}, TooLargeError("file exceeds declared size")
		}
		return model.Item{}, InternalError("staging failed")
	}

	s.seq++
	it := model.Item{
		ID:         uuid.NewString(),
		Seq:        s.seq,
		Kind:       model.KindForMime(mimeType),
		Name:       name,
		MimeType:   mimeType,
		Size:       staged,
		CreatedAt:  s.now().UnixMilli(),
		BlobHandle: handle,
	}
	if s.signer != nil {
		tok, err := s.signer.Sign(s.id, it.ID, time.UnixMilli(s.expiresAt))
		if err != nil {
			// The blob must not outlive a failed acceptance.
			_ = s.staging.Release(handle)
			return model.Item{}, InternalError("download token signing failed")
		}
		it.DownloadToken = tok
	}
	s.items.Append(it)
	s.broadcastLocked(Event{Type: EventItemAdded, Item: &it, Ref: ref})
	return it, nil
}

// RemoveItem hides the item from all future snapshots and releases its
// blob, then broadcasts the removal. Removal is the only lifecycle
// change an accepted item can undergo.
func (s *Session) RemoveItem(itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.liveLocked(); err != nil {
		return err
	}
	it, ok := s.items.Remove(itemID)
	if !ok {
		return NotFoundError("item not found")
	}
	if it.BlobHandle != "" {
		if err := s.staging.Release(it.BlobHandle); err != nil {
			log.Error().Err(err).Str("session", s.id).Str("item", itemID).Msg("blob release failed")
		}
	}
	s.broadcastLocked(Event{Type: EventItemRemoved, ItemID: itemID})
	return nil
}

// Snapshot returns the live items in sequence order.
func (s *Session) Snapshot() []model.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items.Snapshot()
}

// FileBytes resolves a live file item's staged payload for download.
func (s *Session) FileBytes(itemID string) (model.Item, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.liveLocked(); err != nil {
		return model.Item{}, nil, err
	}
	it, ok := s.items.Get(itemID)
	if !ok || !it.IsFile() {
		return model.Item{}, nil, NotFoundError("file not found")
	}
	data, ok := s.staging.Bytes(it.BlobHandle)
	if !ok {
		return model.Item{}, nil, NotFoundError("file not found")
	}
	return it, data, nil
}

// end transitions the session to ended exactly once: broadcasts the
// final event, releases every staged blob, and detaches all members.
// Ending is session-wide, not per-device.
func (s *Session) end() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return false
	}
	s.ended = true
	s.broadcastLocked(Event{Type: EventSessionEnded})
	s.staging.ReleaseAll()
	s.hub.CloseAll()
	return true
}

func (s *Session) broadcastLocked(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("session", s.id).Msg("event marshal failed")
		return
	}
	s.hub.Broadcast(payload)
}

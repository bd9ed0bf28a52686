package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatgate/internal/app/bridge"
	"chatgate/internal/app/store"
)

// wireFrame mirrors the outbound envelope with a raw payload for assertions.
type wireFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// drainEvents empties the client's send queue and decodes every queued frame.
func drainEvents(t *testing.T, c *Client) []wireFrame {
	t.Helper()

	var frames []wireFrame
	for {
		select {
		case raw, ok := <-c.send:
			if !ok {
				return frames
			}
			var f wireFrame
			require.NoError(t, json.Unmarshal(raw, &f))
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

// eventNames extracts the event names of the drained frames.
func eventNames(frames []wireFrame) []string {
	names := make([]string, 0, len(frames))
	for _, f := range frames {
		names = append(names, f.Event)
	}
	return names
}

func newTestClient(userID, displayName string) *Client {
	return newClient(nil, userID, displayName)
}

// fakeStore is an in-memory Store used across the gateway tests.
type fakeStore struct {
	mu sync.Mutex

	participants map[string][]store.UserRef
	messages     map[string]store.Message
	profiles     map[string]store.Profile
	readSummary  store.ReadSummary

	createCalls int
	createErr   error

	offline    []string
	offlineErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		participants: make(map[string][]store.UserRef),
		messages:     make(map[string]store.Message),
		profiles:     make(map[string]store.Profile),
	}
}

func (f *fakeStore) CreateMessage(_ context.Context, senderID, conversationID, content string, attachments []store.AttachmentInput) (store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.createCalls++
	if f.createErr != nil {
		return store.Message{}, f.createErr
	}

	msg := store.Message{
		ID:             fmt.Sprintf("msg-%d", f.createCalls),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
	}
	for i, input := range attachments {
		msg.Attachments = append(msg.Attachments, store.Attachment{
			ID:       fmt.Sprintf("att-%d-%d", f.createCalls, i),
			FileKey:  input.FileKey,
			FileName: input.FileName,
			MimeType: input.MimeType,
			FileSize: input.FileSize,
		})
	}

	f.messages[msg.ID] = msg
	return msg, nil
}

func (f *fakeStore) ConversationParticipants(_ context.Context, conversationID string) ([]store.UserRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	refs, ok := f.participants[conversationID]
	if !ok {
		return nil, store.ErrConversationNotFound
	}
	return refs, nil
}

func (f *fakeStore) MarkMessageRead(_ context.Context, callerID, messageID string, read bool) (store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	msg, ok := f.messages[messageID]
	if !ok {
		return store.Message{}, store.ErrMessageNotFound
	}

	if callerID == msg.SenderID {
		if !read {
			return store.Message{}, store.ErrOwnMessageUnread
		}
		return msg, nil
	}

	msg.Read = read
	f.messages[messageID] = msg
	return msg, nil
}

func (f *fakeStore) MarkConversationRead(_ context.Context, _, conversationID string) (store.ReadSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	summary := f.readSummary
	summary.ConversationID = conversationID
	return summary, nil
}

func (f *fakeStore) GetDisplayName(_ context.Context, userID string) (store.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	profile, ok := f.profiles[userID]
	if !ok {
		return store.Profile{}, fmt.Errorf("user %s not found", userID)
	}
	return profile, nil
}

func (f *fakeStore) MarkUserOffline(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.offline = append(f.offline, userID)
	return f.offlineErr
}

func (f *fakeStore) offlineCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.offline...)
}

// recordingBridge captures bridge publishes for assertions.
type recordingBridge struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (b *recordingBridge) Publish(_ context.Context, _ string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.payloads = append(b.payloads, payload)
	return nil
}

func (b *recordingBridge) Subscribe(string, bridge.Handler) error { return nil }

func (b *recordingBridge) Close() error { return nil }

func (b *recordingBridge) published() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([][]byte(nil), b.payloads...)
}

func newTestDispatcher(fs *fakeStore, br bridge.Bridge) (*Dispatcher, *ConnectionRegistry, *RoomRegistry) {
	if br == nil {
		br = bridge.NewNoop()
	}
	registry := NewConnectionRegistry()
	rooms := NewRoomRegistry()
	return NewDispatcher(fs, registry, rooms, br, "test-instance"), registry, rooms
}

func frame(event string, payload any) []byte {
	raw, _ := json.Marshal(map[string]any{"event": event, "payload": payload})
	return raw
}

func TestDispatch_SendMessage_DeliversToOtherParticipant(t *testing.T) {
	fs := newFakeStore()
	fs.participants["conv1"] = []store.UserRef{{ID: "alice"}, {ID: "bob"}}

	br := &recordingBridge{}
	d, registry, _ := newTestDispatcher(fs, br)

	alice := newTestClient("alice", "Alice")
	bob := newTestClient("bob", "Bob")
	registry.Register(alice)
	registry.Register(bob)

	d.Dispatch(alice, frame(EventSendMessage, map[string]any{
		"conversationId": "conv1",
		"content":        "hi",
	}))

	assert.Equal(t, 1, fs.createCalls)

	aliceFrames := drainEvents(t, alice)
	require.Len(t, aliceFrames, 1)
	assert.Equal(t, EventSendMessage, aliceFrames[0].Event)

	var ack AckPayload
	require.NoError(t, json.Unmarshal(aliceFrames[0].Data, &ack))
	assert.True(t, ack.Success)
	require.NotNil(t, ack.Message)
	assert.Equal(t, "hi", ack.Message.Content)

	bobFrames := drainEvents(t, bob)
	require.Len(t, bobFrames, 1)
	assert.Equal(t, EventNewMessage, bobFrames[0].Event)

	var delivered NewMessagePayload
	require.NoError(t, json.Unmarshal(bobFrames[0].Data, &delivered))
	assert.Equal(t, ack.Message.ID, delivered.Message.ID)
	assert.Equal(t, "hi", delivered.Message.Content)

	// The delivery event also went out on the bridge, tagged with both participants.
	published := br.published()
	require.Len(t, published, 1)

	var envelope BridgeEnvelope
	require.NoError(t, json.Unmarshal(published[0], &envelope))
	assert.Equal(t, "test-instance", envelope.Origin)
	assert.ElementsMatch(t, []string{"alice", "bob"}, envelope.ParticipantIDs)
}

func TestDispatch_SendMessage_MultiDeviceFanOut(t *testing.T) {
	fs := newFakeStore()
	fs.participants["conv1"] = []store.UserRef{{ID: "alice"}, {ID: "bob"}}

	d, registry, _ := newTestDispatcher(fs, nil)

	alice := newTestClient("alice", "Alice")
	bobPhone := newTestClient("bob", "Bob")
	bobLaptop := newTestClient("bob", "Bob")
	bobTablet := newTestClient("bob", "Bob")
	registry.Register(alice)
	registry.Register(bobPhone)
	registry.Register(bobLaptop)
	registry.Register(bobTablet)

	// Saturate one device's queue to simulate a stuck connection.
	for n := 0; n < sendQueueSize; n++ {
		bobPhone.send <- []byte("{}")
	}

	d.Dispatch(alice, frame(EventSendMessage, map[string]any{
		"conversationId": "conv1",
		"content":        "hello bob",
	}))

	// A failure on one device does not suppress delivery to the others.
	assert.Equal(t, []string{EventNewMessage}, eventNames(drainEvents(t, bobLaptop)))
	assert.Equal(t, []string{EventNewMessage}, eventNames(drainEvents(t, bobTablet)))
}

func TestDispatch_SendMessage_AttachmentLimitRejectedBeforeStore(t *testing.T) {
	fs := newFakeStore()
	fs.participants["conv1"] = []store.UserRef{{ID: "alice"}, {ID: "bob"}}

	d, registry, _ := newTestDispatcher(fs, nil)

	alice := newTestClient("alice", "Alice")
	registry.Register(alice)

	attachments := make([]map[string]any, 11)
	for i := range attachments {
		attachments[i] = map[string]any{
			"fileKey":  fmt.Sprintf("conv1/file%d.png", i),
			"fileName": fmt.Sprintf("file%d.png", i),
			"mimeType": "image/png",
			"fileSize": 1024,
		}
	}

	d.Dispatch(alice, frame(EventSendMessage, map[string]any{
		"conversationId": "conv1",
		"attachments":    attachments,
	}))

	assert.Equal(t, 0, fs.createCalls)

	frames := drainEvents(t, alice)
	require.Len(t, frames, 1)
	assert.Equal(t, EventError, frames[0].Event)
}

func TestDispatch_SendMessage_EmptyMessageRejected(t *testing.T) {
	fs := newFakeStore()
	d, registry, _ := newTestDispatcher(fs, nil)

	alice := newTestClient("alice", "Alice")
	registry.Register(alice)

	d.Dispatch(alice, frame(EventSendMessage, map[string]any{
		"conversationId": "conv1",
		"content":        "   ",
	}))

	assert.Equal(t, 0, fs.createCalls)
	assert.Equal(t, []string{EventError}, eventNames(drainEvents(t, alice)))
}

func TestDispatch_SendMessage_NonParticipantRejected(t *testing.T) {
	fs := newFakeStore()
	fs.participants["conv1"] = []store.UserRef{{ID: "alice"}, {ID: "bob"}}

	d, registry, _ := newTestDispatcher(fs, nil)

	mallory := newTestClient("mallory", "Mallory")
	registry.Register(mallory)

	d.Dispatch(mallory, frame(EventSendMessage, map[string]any{
		"conversationId": "conv1",
		"content":        "let me in",
	}))

	assert.Equal(t, 0, fs.createCalls)
	assert.Equal(t, []string{EventError}, eventNames(drainEvents(t, mallory)))
}

func TestDispatch_MarkAsRead_OwnMessageAsymmetry(t *testing.T) {
	fs := newFakeStore()
	fs.messages["msg-1"] = store.Message{ID: "msg-1", ConversationID: "conv1", SenderID: "alice", Content: "hi"}

	d, registry, _ := newTestDispatcher(fs, nil)

	alice := newTestClient("alice", "Alice")
	registry.Register(alice)

	// Marking your own message unread is rejected with a validation error.
	d.Dispatch(alice, frame(EventMarkAsRead, map[string]any{
		"messageId": "msg-1",
		"read":      false,
	}))
	assert.Equal(t, []string{EventError}, eventNames(drainEvents(t, alice)))

	// Marking it read succeeds trivially as a no-op.
	d.Dispatch(alice, frame(EventMarkAsRead, map[string]any{
		"messageId": "msg-1",
		"read":      true,
	}))

	frames := drainEvents(t, alice)
	require.Len(t, frames, 1)
	assert.Equal(t, EventMessageReadStatusChanged, frames[0].Event)

	var status ReadStatusPayload
	require.NoError(t, json.Unmarshal(frames[0].Data, &status))
	assert.Equal(t, "msg-1", status.MessageID)
	assert.False(t, status.Read)
}

func TestDispatch_MarkAsRead_ByRecipient(t *testing.T) {
	fs := newFakeStore()
	fs.messages["msg-1"] = store.Message{ID: "msg-1", ConversationID: "conv1", SenderID: "alice", Content: "hi"}

	d, registry, _ := newTestDispatcher(fs, nil)

	bob := newTestClient("bob", "Bob")
	registry.Register(bob)

	d.Dispatch(bob, frame(EventMarkAsRead, map[string]any{
		"messageId": "msg-1",
		"read":      true,
	}))

	frames := drainEvents(t, bob)
	require.Len(t, frames, 1)
	assert.Equal(t, EventMessageReadStatusChanged, frames[0].Event)

	var status ReadStatusPayload
	require.NoError(t, json.Unmarshal(frames[0].Data, &status))
	assert.True(t, status.Read)
}

func TestDispatch_MarkAsRead_MissingReadFlagRejected(t *testing.T) {
	fs := newFakeStore()
	d, registry, _ := newTestDispatcher(fs, nil)

	bob := newTestClient("bob", "Bob")
	registry.Register(bob)

	d.Dispatch(bob, frame(EventMarkAsRead, map[string]any{"messageId": "msg-1"}))

	assert.Equal(t, []string{EventError}, eventNames(drainEvents(t, bob)))
}

func TestDispatch_MarkConversationAsRead_NotifiesRoom(t *testing.T) {
	fs := newFakeStore()
	fs.readSummary = store.ReadSummary{UpdatedCount: 2, MessageIDs: []string{"msg-1", "msg-2"}}

	d, registry, rooms := newTestDispatcher(fs, nil)

	alice := newTestClient("alice", "Alice")
	bob := newTestClient("bob", "Bob")
	registry.Register(alice)
	registry.Register(bob)
	rooms.Join(ConversationRoom("conv1"), alice)
	rooms.Join(ConversationRoom("conv1"), bob)

	d.Dispatch(bob, frame(EventMarkConversationAsRead, map[string]any{"conversationId": "conv1"}))

	for _, c := range []*Client{alice, bob} {
		frames := drainEvents(t, c)
		require.Len(t, frames, 3)
		assert.Equal(t, []string{
			EventMessageReadStatusChanged,
			EventMessageReadStatusChanged,
			EventConversationReadStatusChanged,
		}, eventNames(frames))

		var summary ConversationReadPayload
		require.NoError(t, json.Unmarshal(frames[2].Data, &summary))
		assert.Equal(t, 2, summary.UpdatedCount)
		assert.Equal(t, "conv1", summary.ConversationID)
	}
}

func TestDispatch_Typing_DoesNotEchoToSender(t *testing.T) {
	fs := newFakeStore()
	d, registry, rooms := newTestDispatcher(fs, nil)

	alice := newTestClient("alice", "Alice")
	bob := newTestClient("bob", "Bob")
	registry.Register(alice)
	registry.Register(bob)
	rooms.Join(ConversationRoom("conv1"), alice)
	rooms.Join(ConversationRoom("conv1"), bob)

	d.Dispatch(alice, frame(EventTyping, map[string]any{
		"conversationId": "conv1",
		"isTyping":       true,
	}))

	assert.Empty(t, drainEvents(t, alice))

	bobFrames := drainEvents(t, bob)
	require.Len(t, bobFrames, 1)
	assert.Equal(t, EventUserTyping, bobFrames[0].Event)

	var typing TypingPayload
	require.NoError(t, json.Unmarshal(bobFrames[0].Data, &typing))
	assert.True(t, typing.IsTyping)
	assert.Equal(t, "alice", typing.UserID)
	assert.Equal(t, "Alice", typing.DisplayName)
}

func TestDispatch_JoinAndLeaveConversation(t *testing.T) {
	fs := newFakeStore()
	d, registry, rooms := newTestDispatcher(fs, nil)

	alice := newTestClient("alice", "Alice")
	registry.Register(alice)

	d.Dispatch(alice, frame(EventJoinConversation, map[string]any{"conversationId": "conv1"}))
	assert.Equal(t, 1, rooms.MemberCount(ConversationRoom("conv1")))

	frames := drainEvents(t, alice)
	require.Len(t, frames, 1)
	assert.Equal(t, EventJoinConversation, frames[0].Event)

	d.Dispatch(alice, frame(EventLeaveConversation, map[string]any{"conversationId": "conv1"}))
	assert.Equal(t, 0, rooms.MemberCount(ConversationRoom("conv1")))
}

func TestDispatch_MalformedFrame_ErrorToSenderOnly(t *testing.T) {
	fs := newFakeStore()
	d, registry, _ := newTestDispatcher(fs, nil)

	alice := newTestClient("alice", "Alice")
	bob := newTestClient("bob", "Bob")
	registry.Register(alice)
	registry.Register(bob)

	d.Dispatch(alice, []byte("{not json"))

	assert.Equal(t, []string{EventError}, eventNames(drainEvents(t, alice)))
	assert.Empty(t, drainEvents(t, bob))
}

func TestDispatch_UnsupportedEvent(t *testing.T) {
	fs := newFakeStore()
	d, registry, _ := newTestDispatcher(fs, nil)

	alice := newTestClient("alice", "Alice")
	registry.Register(alice)

	d.Dispatch(alice, frame("selfDestruct", map[string]any{}))

	assert.Equal(t, []string{EventError}, eventNames(drainEvents(t, alice)))
}

func TestDispatch_Pong_MarksConnectionAlive(t *testing.T) {
	fs := newFakeStore()
	d, registry, _ := newTestDispatcher(fs, nil)

	alice := newTestClient("alice", "Alice")
	registry.Register(alice)
	alice.expireProbe()
	require.False(t, alice.isAlive())

	d.Dispatch(alice, frame(EventPong, nil))

	assert.True(t, alice.isAlive())
	assert.Empty(t, drainEvents(t, alice))
}

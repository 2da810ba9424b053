package chatsync

import "go.uber.org/zap"

// ScreenID identifies what the user is currently looking at.
type ScreenID string

// ScreenConversationList is the conversation overview screen.
const ScreenConversationList ScreenID = "conversations"

// ThreadScreen returns the screen id of an open conversation thread.
func ThreadScreen(conversationID string) ScreenID {
	return ScreenID("thread:" + conversationID)
}

// ShouldNotify decides whether a new-message event warrants a local
// notification. The only suppression rule: the message's own thread is
// open on screen. The conversation list does not suppress; unread badges
// there are reinforcement, not duplication.
func ShouldNotify(ev NewMessageEvent, active ScreenID) bool {
	return active != ThreadScreen(ev.ConversationID)
}

// NotificationScheduler posts a local notification. Implemented by the
// host platform layer.
type NotificationScheduler interface {
	ScheduleMessageNotification(senderName, body, conversationID string, kind ConversationKind)
}

// NotificationBridge applies the suppression rule and forwards to the
// scheduler. The active screen is fed by the host's navigation layer.
type NotificationBridge struct {
	scheduler NotificationScheduler
	log       *zap.Logger

	activeFn func() ScreenID
}

// NewNotificationBridge creates a bridge. activeFn reports the screen
// currently on top; a nil scheduler disables notifications entirely.
func NewNotificationBridge(scheduler NotificationScheduler, activeFn func() ScreenID, log *zap.Logger) *NotificationBridge {
	if log == nil {
		log = zap.NewNop()
	}
	return &NotificationBridge{scheduler: scheduler, log: log, activeFn: activeFn}
}

// HandleNewMessage schedules a notification unless the message's thread is
// the active screen.
func (b *NotificationBridge) HandleNewMessage(ev NewMessageEvent, kind ConversationKind) {
	if b.scheduler == nil {
		return
	}
	active := ScreenID("")
	if b.activeFn != nil {
		active = b.activeFn()
	}
	if !ShouldNotify(ev, active) {
		b.log.Debug("notification suppressed, thread open",
			zap.String("conversationId", ev.ConversationID))
		return
	}
	b.scheduler.ScheduleMessageNotification(ev.SenderName, ev.Message.Body, ev.ConversationID, kind)
}

package chat

import "fmt"

// ConversationKey is the canonical identity of the unordered pair of
// participants. Low is always the smaller user id, so the key for (A, B)
// and (B, A) is the same value and can be compared directly.
type ConversationKey struct {
	Low  int64
	High int64
}

func NewConversationKey(userA, userB int64) ConversationKey {
	if userA > userB {
		userA, userB = userB, userA
	}
	return ConversationKey{Low: userA, High: userB}
}

// Other returns the participant that is not self. Self must be one of
// the pair; for a self-conversation both sides are the same user.
func (k ConversationKey) Other(self int64) int64 {
	if self == k.Low {
		return k.High
	}
	return k.Low
}

func (k ConversationKey) Contains(userID int64) bool {
	return userID == k.Low || userID == k.High
}

func (k ConversationKey) String() string {
	return fmt.Sprintf("%d:%d", k.Low, k.High)
}

package presence

// TypingView is the subscriber-facing summary of who is typing in a
// conversation: nobody, one named actor with live content, or a count.
type TypingView struct {
	Count       int    `json:"count"`
	ActorName   string `json:"actorName,omitempty"`
	LiveContent string `json:"liveContent,omitempty"`
}

// View summarizes the current typing set for display. With exactly one
// typist the actor's name and live content surface; with more than one only
// the count does.
func (t *Tracker) View(conversationID string) TypingView {
	states := t.Snapshot(conversationID)

	switch len(states) {
	case 0:
		return TypingView{}
	case 1:
		return TypingView{
			Count:       1,
			ActorName:   states[0].ActorName,
			LiveContent: states[0].LiveContent,
		}
	default:
		return TypingView{Count: len(states)}
	}
}

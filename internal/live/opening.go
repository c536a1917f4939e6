package live

import "math/rand/v2"

// openingPrompts is the fixed set of situational prompts. One is sent as a
// synthetic user turn the moment the session opens, so the model produces a
// natural opening utterance instead of the call starting in dead silence.
var openingPrompts = [...]string{
	"(The call just connected. Greet the person on the line naturally, as if you picked up.)",
	"(The line clicks open. Say hello and ask how you can help.)",
	"(You hear someone pick up on the other end. Open the conversation warmly.)",
	"(A call has just come through to you. Answer it the way you always do.)",
	"(The connection is live. Break the silence with a casual, friendly opener.)",
}

// OpeningPrompt returns one situational prompt chosen by r. A nil r falls
// back to the shared random source; tests pass a seeded source for
// deterministic selection.
func OpeningPrompt(r *rand.Rand) string {
	if r == nil {
		return openingPrompts[rand.IntN(len(openingPrompts))]
	}
	return openingPrompts[r.IntN(len(openingPrompts))]
}

package breakup

import "github.com/MikeSquared-Agency/rapport/internal/emotion"

var closingMessages = map[emotion.ConflictType][]string{
	emotion.ConflictJealousy: {
		"I can't keep wondering where I stand with you. I think we both deserve someone who doesn't make the other feel replaceable. Goodbye.",
		"Every time you talk about them I feel smaller. I'm done feeling like an option. Take care of yourself.",
		"I don't want to be the jealous one anymore, and you never gave me a reason not to be. I'm letting go.",
	},
	emotion.ConflictAttention: {
		"I kept waiting for you to show up, and you kept not showing up. I'm tired of waiting. Goodbye.",
		"It shouldn't be this hard to get a real answer from you. I think we want different things.",
		"I was always the one reaching out. I'm going to stop now. I hope you find what you're looking for.",
	},
	emotion.ConflictBoundary: {
		"I told you where my lines were and you kept crossing them. I have to protect myself. This is over.",
		"Respect was the one thing I needed from you. Without it, I can't stay.",
		"I'm not going to keep explaining why no means no. Goodbye.",
	},
	emotion.ConflictTrust: {
		"I can't trust you, and without trust there's nothing left to build on. I'm done.",
		"I keep replaying the things you said and I don't know which ones were true. I need to walk away.",
		"You broke something I don't know how to fix. I'm sorry, but this is where it ends.",
	},
}

var genericClosing = []string{
	"I've thought about this a lot. I don't think we're good for each other anymore. Goodbye.",
	"This stopped feeling like a relationship a while ago. I need to move on.",
	"I cared about you, I really did. But I can't do this anymore. Take care.",
}

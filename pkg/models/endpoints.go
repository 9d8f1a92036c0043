package models

// Server endpoints of the voting UI.
const (
	// PathInstantPoker creates a session on POST and renders the instant widget on GET
	PathInstantPoker = "/secure/InstantPoker!default.jspa"

	// PathVoteForm renders the vote form
	PathVoteForm = "/secure/PokerVote!default.jspa"

	// PathVote accepts vote, endSession and applyEstimate actions
	PathVote = "/secure/PokerVote.jspa"

	// PathViewVotes renders the votes of an ended session
	PathViewVotes = "/secure/PokerVote!viewVotes.jspa"

	// PathViewVoters renders who has voted so far
	PathViewVoters = "/secure/PokerVote!viewVoters.jspa"

	// PathBrowse prefixes the host page of an issue
	PathBrowse = "/browse/"

	// TokenField is the form field carrying the anti-forgery token
	TokenField = "atl_token"
)

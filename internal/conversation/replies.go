package conversation

// English reply templates. Replies are translated to the rider's
// language on the way out; templates that embed a rider-supplied name
// are passed through the profanity filter first.
const (
	replyReset = "DONE"

	replyAskName = "Hi! I can help you find someone to share a ride with. What's your first name?"

	welcomeBackFmt = "Welcome back, %s! Where should we pick you up?"
	askPickupFmt   = "Thanks, %s! Where should we pick you up?"

	replyAskDestination = "Got it. Where are you headed?"

	replyInvalidAddress = "Sorry, I couldn't place that address. Please send a specific street address, like \"1 Main St\"."

	replyHighVolume = "We're handling a high volume of messages right now. Please try again in a moment."

	replySearching      = "Thanks! We're looking for someone to share your ride. We'll text you as soon as we find a match."
	replyStillSearching = "Still looking for a match. Hang tight - we'll text you the moment we find one."

	matchFoundFmt  = "Great news! %s is headed the same way. You two can share the ride from here."
	matchNotifyFmt = "Great news! %s is looking to share a ride with you and is headed the same way."
)

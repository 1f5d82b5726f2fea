package classify

import "github.com/vietddude/relaychat/internal/core/domain"

var userMessages = map[domain.ErrorType]string{
	domain.ErrorTypeNetwork: "We couldn't reach the chat service. Please check your connection and try again.",
	domain.ErrorTypeTimeout: "The chat service is taking too long to respond. Please try again.",
	domain.ErrorTypeCORS:    "The chat service can't be reached from this page. Please contact the site owner.",
	domain.ErrorTypeHTTP:    "The chat service ran into a problem. Please try again in a moment.",
	domain.ErrorTypeParse:   "We received an unexpected reply from the chat service. Please try again.",
	domain.ErrorTypeAbort:   "The message was cancelled.",
}

const fallbackMessage = "Something went wrong. Please try again."

// UserMessage returns the sentence shown to the user for err.
func UserMessage(err domain.NetworkError) string {
	if msg, ok := userMessages[err.Type]; ok {
		return msg
	}
	return fallbackMessage
}

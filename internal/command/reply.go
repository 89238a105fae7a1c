package command

import "errors"

// GenericFailure is shown when a handler fails for reasons the invoker
// cannot fix.
const GenericFailure = "❌ Something went wrong. Please try again later."

// ErrorReply turns a dispatch error into what the invoker sees.
func ErrorReply(err error) Response {
	switch {
	case errors.Is(err, ErrNotReady):
		return Private("⏳ Still starting up, try again in a moment.")
	case errors.Is(err, ErrForbidden):
		return Private("⛔ Only administrators can use this command.")
	case errors.Is(err, ErrUnknownCommand):
		return Private("❓ I don't know that command.")
	case errors.Is(err, ErrInvalidOption):
		return Private("⚠️ " + err.Error())
	default:
		return Private(GenericFailure)
	}
}

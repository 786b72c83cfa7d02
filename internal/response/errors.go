package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrSessionActive      ErrCode = "SESSION_ALREADY_ACTIVE"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden     ErrCode = "FORBIDDEN"
	ErrBlockNoAccess ErrCode = "BLOCK_ACCESS_DENIED"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Quiz-specific ─────────────────────────────────────────────────
	ErrQuizLoadFailed     ErrCode = "QUIZ_LOAD_FAILED"
	ErrNoActiveSession    ErrCode = "NO_ACTIVE_SESSION"
	ErrSessionNotReady    ErrCode = "SESSION_NOT_READY"
	ErrSessionCompleted   ErrCode = "SESSION_COMPLETED"
	ErrSubmitInProgress   ErrCode = "SUBMIT_IN_PROGRESS"
	ErrSubmitFailed       ErrCode = "SUBMIT_FAILED"
	ErrNothingToRetry     ErrCode = "NOTHING_TO_RETRY"
	ErrGatewayUnavailable ErrCode = "GATEWAY_UNAVAILABLE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Email or password is incorrect."
	case ErrSessionActive:
		return "You are already logged in on another device."
	case ErrSessionInvalidated:
		return "Your session has ended. Please log in again."
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is not valid."
	case ErrTokenExpired:
		return "Authentication token has expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrBlockNoAccess:
		return "You do not have access to this block."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid id format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "Resource already exists."

	// ─── Quiz-specific ─────────────────────────────────────────────────
	case ErrQuizLoadFailed:
		return "The quiz for this block could not be loaded."
	case ErrNoActiveSession:
		return "No quiz attempt is in progress."
	case ErrSessionNotReady:
		return "The quiz attempt is not ready yet."
	case ErrSessionCompleted:
		return "This quiz attempt has already been completed."
	case ErrSubmitInProgress:
		return "A submission is already in progress."
	case ErrSubmitFailed:
		return "Submitting your result failed. Your answers are saved, please retry."
	case ErrNothingToRetry:
		return "There is no failed submission to retry."
	case ErrGatewayUnavailable:
		return "The test platform is temporarily unavailable."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}

package services

import "errors"

// Shared sentinel errors mapped to HTTP statuses in the handlers package.
var (
	ErrNotFound = errors.New("requested resource not found")

	// Validation and business rules
	ErrValidationFailed    = errors.New("validation failed")
	ErrPasswordTooShort    = errors.New("password is too short")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrTeamNameRequired    = errors.New("team name is required")
	ErrWrongPlayerCount    = errors.New("wrong number of player game IDs for this team mode")
	ErrUPIReferenceMissing = errors.New("UPI transaction reference is required")
	ErrRegistrationClosed  = errors.New("tournament registration is closed")
	ErrTournamentFull      = errors.New("tournament has no free slots")
	ErrInvalidRedemption   = errors.New("redemption amount must be positive")

	// Conflicts
	ErrUserEmailConflict     = errors.New("email address is already in use")
	ErrRegistrationConflict  = errors.New("team name or user already registered for this tournament")
	ErrWinnerAlreadyDeclared = errors.New("winner already declared for this tournament")

	// Authz
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrForbiddenOperation   = errors.New("operation not allowed for the current user")

	// Entity-specific not-found
	ErrUserNotFound         = errors.New("user not found")
	ErrTournamentNotFound   = errors.New("tournament not found")
	ErrRegistrationNotFound = errors.New("registration not found")
	ErrTeamNotFound         = errors.New("team not found on the confirmed roster")
	ErrRedemptionNotFound   = errors.New("redemption not found")

	// Tournament rules
	ErrTournamentTitleRequired           = errors.New("tournament title is required")
	ErrTournamentInvalidMode             = errors.New("team mode must be solo, duo or squad")
	ErrTournamentInvalidSlots            = errors.New("slots total must be a power of two (2, 4, 8, ...)")
	ErrTournamentInvalidDeadline         = errors.New("registration deadline must be in the future")
	ErrTournamentInvalidStatus           = errors.New("invalid tournament status provided")
	ErrTournamentInvalidStatusTransition = errors.New("invalid tournament status transition")
	ErrTournamentHasConfirmedSlots       = errors.New("tournament with confirmed slots cannot shrink below its roster")
	ErrBracketNotGenerated               = errors.New("tournament has no bracket yet")
	ErrFinalNotDecided                   = errors.New("the final matchup has no winner yet")
	ErrInsufficientBalance               = errors.New("wallet balance is insufficient")
)

package game

import "errors"

var (
	ErrGameNotStarted    = errors.New("game has not started")
	ErrGameStarted       = errors.New("game already started")
	ErrGameEnded         = errors.New("game has ended")
	ErrUnknownPlayer     = errors.New("unknown player")
	ErrPlayerEliminated  = errors.New("player has been eliminated")
	ErrNotActivePlayer   = errors.New("only the active player may do that")
	ErrStackNotEmpty     = errors.New("stack is not empty")
	ErrCannotPay         = errors.New("cannot pay mana cost")
	ErrUnknownCard       = errors.New("unknown card")
	ErrNotALand          = errors.New("card is not a land")
	ErrLandAlreadyPlayed = errors.New("land already played this turn")
	ErrWrongTiming       = errors.New("not allowed in the current step")
	ErrDuplicateAction   = errors.New("action already applied")
	ErrSequenceGap       = errors.New("action arrived ahead of sequence")
	ErrUnknownAction     = errors.New("unknown action type")
	ErrInvalidAction     = errors.New("invalid action data")
	ErrCatchingUp        = errors.New("queued actions are still being applied")
)

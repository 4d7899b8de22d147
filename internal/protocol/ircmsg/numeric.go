package ircmsg

// Numeric replies the client packages react to.
const (
	RplWelcome  = 1
	RplYourHost = 2
	RplCreated  = 3
	RplMyInfo   = 4
	RplISupport = 5
	RplBounce   = 10

	ErrUnknownCommandNumeric = 421
	ErrNoNicknameGiven       = 431
	ErrErroneusNickname      = 432
	ErrNicknameInUse         = 433
	ErrNickCollision         = 436
	ErrUnavailResource       = 437
	ErrNotRegistered         = 451
	ErrPasswdMismatch        = 464
	ErrYoureBannedCreep      = 465

	RplLoggedIn    = 900
	RplLoggedOut   = 901
	ErrNickLocked  = 902
	RplSaslSuccess = 903
	ErrSaslFail    = 904
	ErrSaslTooLong = 905
	ErrSaslAborted = 906
	ErrSaslAlready = 907
	RplSaslMechs   = 908
)

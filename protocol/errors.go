package protocol

// Kind classifies command failures. The wire reports every kind the same way
// (an "ERROR: ..." line, connection stays open); the split exists so callers
// can count failures and tests can assert on the class, not the text.
type Kind string

const (
	KindProtocol      Kind = "protocol"
	KindValidation    Kind = "validation"
	KindAuth          Kind = "auth"
	KindAuthorization Kind = "authorization"
	KindNotFound      Kind = "not_found"
	KindStorage       Kind = "storage"
)

type Error struct {
	Kind Kind
	Op   string
	Msg  string
}

func (e *Error) Error() string {
	return string(e.Kind) + " (" + e.Op + "): " + e.Msg
}

// Line renders the error as sent to the client.
func (e *Error) Line() string {
	return "ERROR: " + e.Msg
}

func Protocolf(op, msg string) *Error      { return &Error{Kind: KindProtocol, Op: op, Msg: msg} }
func Validationf(op, msg string) *Error    { return &Error{Kind: KindValidation, Op: op, Msg: msg} }
func Authf(op, msg string) *Error          { return &Error{Kind: KindAuth, Op: op, Msg: msg} }
func Authorizationf(op, msg string) *Error { return &Error{Kind: KindAuthorization, Op: op, Msg: msg} }
func NotFoundf(op, msg string) *Error      { return &Error{Kind: KindNotFound, Op: op, Msg: msg} }
func Storagef(op, msg string) *Error       { return &Error{Kind: KindStorage, Op: op, Msg: msg} }

package ports

import "github.com/seclane/authgate/core"

// Tokenizer converts between session bindings and transportable tokens
type Tokenizer interface {
	SessionToToken(session *core.SessionBinding) (string, error)
	TokenToSession(token string) (*core.SessionBinding, error)
}

package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var ErrBadCredentials = errors.New("bad client credentials")

// Client is a machine caller (station controller, back office) that trades
// its secret for tokens.
type Client struct {
	ID         string `yaml:"id"`
	Role       string `yaml:"role"`
	SecretHash string `yaml:"secret_hash"`
}

func HashSecret(secret string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	return string(b), err
}

type Clients map[string]Client

func NewClients(list []Client) Clients {
	out := make(Clients, len(list))
	for _, c := range list {
		out[c.ID] = c
	}
	return out
}

// Verify returns the client if secret matches its stored hash.
func (cs Clients) Verify(id, secret string) (Client, error) {
	c, ok := cs[id]
	if !ok {
		return Client{}, ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(c.SecretHash), []byte(secret)); err != nil {
		return Client{}, ErrBadCredentials
	}
	return c, nil
}

package rpc

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

const GrantClientSignature = "client_signature"

// AuthParams is the params object of a client-signature public/auth request.
type AuthParams struct {
	GrantType string `json:"grant_type"`
	ClientID  string `json:"client_id"`
	Timestamp int64  `json:"timestamp"`
	Nonce     string `json:"nonce"`
	Data      string `json:"data"`
	Signature string `json:"signature"`
}

type AuthResult struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope"`
}

func (r AuthResult) Authenticated() bool {
	return r.TokenType == "bearer"
}

type Signer struct {
	clientID string
	secret   []byte
	now      func() time.Time
	nonce    func() (string, error)
}

func NewSigner(clientID, secret string) (*Signer, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return nil, errors.New("client id is required")
	}
	if secret == "" {
		return nil, errors.New("client secret is required")
	}
	return &Signer{clientID: clientID, secret: []byte(secret), now: time.Now, nonce: randomNonce}, nil
}

// AuthParams builds a freshly signed authentication request.
func (s *Signer) AuthParams() (AuthParams, error) {
	nonce, err := s.nonce()
	if err != nil {
		return AuthParams{}, err
	}
	ts := s.now().UnixMilli()
	const data = ""
	return AuthParams{
		GrantType: GrantClientSignature,
		ClientID:  s.clientID,
		Timestamp: ts,
		Nonce:     nonce,
		Data:      data,
		Signature: Sign(s.secret, ts, nonce, data),
	}, nil
}

// Sign returns lower-case hex HMAC-SHA256 over "{timestamp}\n{nonce}\n{data}".
func Sign(secret []byte, timestampMS int64, nonce, data string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strconv.FormatInt(timestampMS, 10) + "\n" + nonce + "\n" + data))
	return hex.EncodeToString(mac.Sum(nil))
}

func randomNonce() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

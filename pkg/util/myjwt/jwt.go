package myjwt

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrEmptyKey = errors.New("jwt key is empty")

// CustomClaims Uuid 为平台用户 id 的十进制字符串
type CustomClaims struct {
	Uuid     string `json:"uuid"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// UserID 解析 Uuid 中的平台用户 id
func (c *CustomClaims) UserID() (int64, error) {
	return strconv.ParseInt(c.Uuid, 10, 64)
}

// Signer 签发与校验桥接接口使用的 token
type Signer struct {
	key    []byte
	issuer string
	ttl    time.Duration
}

func NewSigner(key, issuer string, expireHours int) (*Signer, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	if expireHours <= 0 {
		expireHours = 24
	}
	return &Signer{
		key:    []byte(key),
		issuer: issuer,
		ttl:    time.Duration(expireHours) * time.Hour,
	}, nil
}

func (s *Signer) GenerateToken(userID int64, username string) (string, error) {
	now := time.Now()
	claims := CustomClaims{
		Uuid:     strconv.FormatInt(userID, 10),
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    s.issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.key)
}

func (s *Signer) ParseToken(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.key, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if _, err := claims.UserID(); err != nil {
		return nil, errors.New("invalid uuid claim")
	}
	return claims, nil
}

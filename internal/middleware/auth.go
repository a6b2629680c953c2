package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/SergeyBogomolovv/marketplace-checkout/internal/entities"
	"github.com/SergeyBogomolovv/marketplace-checkout/pkg/utils"

	"github.com/golang-jwt/jwt/v5"
)

const GuestTokenHeader = "X-Guest-Token"

type actorKey struct{}

// Claims полезная нагрузка токена, выданного сервисом аутентификации.
type Claims struct {
	Role   entities.Role `json:"role"`
	ShopID string        `json:"shop_id,omitempty"`
	Email  string        `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Auth кладёт в контекст инициатора запроса. Bearer токен даёт пользователя,
// заголовок X-Guest-Token гостя; без них запрос анонимный.
func Auth(secret string) func(next http.Handler) http.Handler {
	key := []byte(secret)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := entities.Actor{Role: entities.RoleCustomer}

			if header := r.Header.Get("Authorization"); header != "" {
				raw, ok := strings.CutPrefix(header, "Bearer ")
				if !ok || raw == "" {
					utils.WriteError(w, "invalid token format", http.StatusUnauthorized)
					return
				}

				var claims Claims
				token, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
					return key, nil
				})
				if err != nil || !token.Valid || claims.Subject == "" {
					utils.WriteError(w, "invalid token", http.StatusUnauthorized)
					return
				}

				actor.UserID = claims.Subject
				actor.Email = claims.Email
				actor.ShopID = claims.ShopID
				if claims.Role != "" {
					actor.Role = claims.Role
				}
			} else {
				actor.GuestToken = r.Header.Get(GuestTokenHeader)
			}

			ctx := context.WithValue(r.Context(), actorKey{}, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func ActorFromContext(ctx context.Context) entities.Actor {
	actor, _ := ctx.Value(actorKey{}).(entities.Actor)
	return actor
}

var errEmptySubject = errors.New("subject is required")

// NewToken подписывает токен; используется тестами и нагрузочными утилитами.
func NewToken(secret string, actor entities.Actor, ttl time.Duration) (string, error) {
	if actor.UserID == "" {
		return "", errEmptySubject
	}
	now := time.Now()
	claims := Claims{
		Role:   actor.Role,
		ShopID: actor.ShopID,
		Email:  actor.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

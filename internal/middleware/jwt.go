package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/mockbank/mockbank/internal/auth"
	"github.com/mockbank/mockbank/internal/session"
)

// SessionAuth validates the bearer access token and the session it is bound to.
// Every authenticated request counts as activity and slides the session window.
func SessionAuth(svc *auth.Service, guard *session.Guard) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := auth.BearerToken(c)
		if token == "" {
			return session.ErrNotFound
		}
		claims, err := svc.ParseAccessToken(token)
		if err != nil {
			return err
		}
		sess, err := guard.Touch(c.UserContext(), claims.SessionID)
		if err != nil {
			return err
		}
		if sess.Snapshot.AccountNumber != claims.Subject {
			return errors.Join(auth.ErrInvalidToken, errors.New("session does not belong to token subject"))
		}

		c.Locals(session.LocalAccountNumber, claims.Subject)
		c.Locals(session.LocalSessionID, sess.ID)
		c.Locals(session.LocalSession, sess)
		return c.Next()
	}
}

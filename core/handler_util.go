package core

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// respondError sends unified error payload {"error": {"code", "message"}}.
func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"error": gin.H{"code": code, "message": message}})
}

// respondLoginError maps credential-verifier failures to stable status
// codes: 401 invalid credentials, 403 banned, 423 locked. Errors never
// escape past this boundary.
func respondLoginError(c *gin.Context, err error) {
	var locked *AccountLockedError
	switch {
	case errors.As(err, &locked):
		retrySeconds := int(locked.RetryAfter.Round(time.Second).Seconds())
		if retrySeconds < 1 {
			retrySeconds = 1
		}
		c.Header("Retry-After", strconv.Itoa(retrySeconds))
		c.JSON(http.StatusLocked, gin.H{"error": gin.H{
			"code":        "ACCOUNT_LOCKED",
			"message":     "too many failed attempts, account temporarily locked",
			"retry_after": retrySeconds,
		}})
	case errors.Is(err, ErrAccountBanned):
		respondError(c, http.StatusForbidden, "ACCOUNT_BANNED", "account is banned")
	case errors.Is(err, ErrInvalidCredentials):
		respondError(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "email or password is incorrect")
	default:
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "login failed")
	}
}

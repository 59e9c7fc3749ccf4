package pandora

import (
	"errors"

	"github.com/rs/zerolog/log"
)

const maxUnknownRetries = 3

// withRetry runs op and applies the client's retry policy: an invalid
// auth token forces a partner re-login and one transparent retry, a
// subscriber tier mismatch re-runs partner login with the corrected tier
// and retries, and unclassified errors get a bounded number of attempts.
// Fatal classes (unsupported API, invalid credentials, rate limit) are
// surfaced immediately.
func (c *Client) withRetry(name string, op func() error) error {
	return c.retry(name, op, true)
}

// withAuthRetry applies only the auth-token and tier recovery. Calls with
// server-side effects use this so an unclassified failure is never
// blindly resubmitted.
func (c *Client) withAuthRetry(name string, op func() error) error {
	return c.retry(name, op, false)
}

func (c *Client) retry(name string, op func() error, retryUnknown bool) error {
	reloggedIn := false
	attempts := 0

	for {
		err := op()
		if err == nil {
			return nil
		}

		var mismatch *SubscriberTypeMismatchError
		if errors.As(err, &mismatch) && !reloggedIn {
			reloggedIn = true
			log.Debug().Str("call", name).Stringer("tier", mismatch.CorrectTier).Msg("Tier mismatch, re-running partner login")
			if loginErr := c.PartnerLogin(mismatch.CorrectTier); loginErr != nil {
				return loginErr
			}
			continue
		}

		switch Classify(err) {
		case ClassInvalidAuthToken:
			if reloggedIn {
				return err
			}
			reloggedIn = true
			log.Debug().Str("call", name).Msg("Auth token rejected, re-running partner login")
			if loginErr := c.PartnerLogin(c.Tier()); loginErr != nil {
				return loginErr
			}
			continue
		case ClassUnknown:
			if !retryUnknown {
				return err
			}
			attempts++
			if attempts >= maxUnknownRetries {
				return err
			}
			log.Warn().Err(err).Str("call", name).Int("attempt", attempts).Msg("Unclassified RPC failure, retrying")
			continue
		default:
			return err
		}
	}
}

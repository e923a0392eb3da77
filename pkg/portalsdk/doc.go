// Package portalsdk is a Go client for the estate portal API.
//
// Unauthenticated calls (login, second factor, refresh, health) live on
// Client. A successful login yields a Session, which carries the token pair
// and refreshes the access token shortly before it expires:
//
//	c := portalsdk.NewClient("https://portal.example.com")
//	res, err := c.Login(ctx, "alice@example.com", password)
//	if err != nil {
//		return err
//	}
//	if res.Requires2FA {
//		res, err = c.CompleteLogin(ctx, res.PendingLoginID, code, false)
//		if err != nil {
//			return err
//		}
//	}
//	sess := c.NewSession(res.Tokens())
//	status, err := sess.TwoFactorStatus(ctx)
//
// Errors returned by the server are *APIError values carrying the HTTP
// status and the "error" code from the response body.
package portalsdk

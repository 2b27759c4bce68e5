// Package portal drives the my.telegram.org web flow that registers a
// Telegram API application:
//
//	hash, _ := c.RequestConfirmationCode(ctx, "+1 234 567 8900")
//	token, _ := c.SignIn(ctx, "+1 234 567 8900", hash, code)
//	_, _ = c.CreateApplication(ctx, token, portal.App{...})
//	creds, _ := c.GetCredentials(ctx, token)
//
// The portal is an HTML site, not an API. Responses are interpreted by
// exact body matches, cookie scans and page scraping; failures surface as the
// typed errors in errors.go.
package portal

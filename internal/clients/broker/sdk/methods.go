package sdk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PaesslerAG/jsonpath"
)

// maxPages bounds pagination so a broken "next" chain cannot loop forever
const maxPages = 500

// Token exchanges username/password (and optional MFA code) for an access token.
// Returns the decoded token response.
func (c *Client) Token(ctx context.Context, username, password, mfaCode string) (interface{}, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("scope", "internal")
	form.Set("client_id", c.clientID)
	form.Set("username", username)
	form.Set("password", password)
	if mfaCode != "" {
		form.Set("mfa_code", mfaCode)
	}

	return c.enqueue(requestJob{
		ctx:      ctx,
		method:   http.MethodPost,
		url:      c.baseURL + "/oauth2/token/",
		form:     form,
		endpoint: "login",
	})
}

// RevokeToken invalidates an access token
func (c *Client) RevokeToken(ctx context.Context, token string) error {
	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("token", token)

	_, err := c.enqueue(requestJob{
		ctx:      ctx,
		method:   http.MethodPost,
		url:      c.baseURL + "/oauth2/revoke_token/",
		form:     form,
		token:    token,
		endpoint: "logout",
	})
	return err
}

// Get fetches a single resource relative to the API root
func (c *Client) Get(ctx context.Context, token, path, endpoint string) (interface{}, error) {
	return c.enqueue(requestJob{
		ctx:      ctx,
		method:   http.MethodGet,
		url:      c.baseURL + "/" + strings.TrimLeft(path, "/"),
		token:    token,
		endpoint: endpoint,
	})
}

// GetPaginated follows "next" links and concatenates every page's "results" in order
func (c *Client) GetPaginated(ctx context.Context, token, path, endpoint string) ([]interface{}, error) {
	next := c.baseURL + "/" + strings.TrimLeft(path, "/")
	var all []interface{}

	for page := 0; next != ""; page++ {
		if page >= maxPages {
			return nil, fmt.Errorf("pagination for %s exceeded %d pages", endpoint, maxPages)
		}
		if !strings.HasPrefix(next, c.baseURL+"/") {
			return nil, fmt.Errorf("refusing to follow pagination link outside %s: %s", c.baseURL, next)
		}

		data, err := c.enqueue(requestJob{
			ctx:      ctx,
			method:   http.MethodGet,
			url:      next,
			token:    token,
			endpoint: endpoint,
		})
		if err != nil {
			return nil, err
		}

		results, err := jsonpath.Get("$.results", data)
		if err != nil {
			return nil, fmt.Errorf("invalid %s page format: %w", endpoint, err)
		}
		items, ok := results.([]interface{})
		if !ok && results != nil {
			return nil, fmt.Errorf("invalid %s page format: results is %T", endpoint, results)
		}
		all = append(all, items...)

		next = ""
		if link, err := jsonpath.Get("$.next", data); err == nil {
			if s, ok := link.(string); ok {
				next = s
			}
		}
	}

	return all, nil
}

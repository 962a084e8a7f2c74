package authsdk

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	DefaultUserPath    = "/user"
	DefaultAdminPath   = "/admin"
	DefaultSessionPath = "/session"
	DefaultLivezPath   = "/livez"
)

// SDKClient is a client for an orgauth server. It keeps the session cookie
// handed out on login and replays it on every following request, so one
// client corresponds to one logged in user.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client

	UserPath    string
	AdminPath   string
	SessionPath string

	mu     sync.Mutex
	cookie string
}

// NewSDKClient creates a client for the server at baseURL using the default
// endpoint paths.
func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		UserPath:    DefaultUserPath,
		AdminPath:   DefaultAdminPath,
		SessionPath: DefaultSessionPath,
	}
}

// Cookie returns the session cookie as a "name=value" pair, or "" when the
// client is not logged in.
func (c *SDKClient) Cookie() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cookie
}

// SetCookie replaces the session cookie, for callers restoring a session
// captured earlier.
func (c *SDKClient) SetCookie(cookie string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cookie = cookie
}

// captureCookies follows Set-Cookie headers. A cookie with a negative
// MaxAge or an empty value clears the session.
func (c *SDKClient) captureCookies(resp *http.Response) {
	for _, ck := range resp.Cookies() {
		c.mu.Lock()
		if ck.MaxAge < 0 || ck.Value == "" {
			c.cookie = ""
		} else {
			c.cookie = ck.Name + "=" + ck.Value
		}
		c.mu.Unlock()
	}
}

// User sends a request to the user endpoint.
func (c *SDKClient) User(ctx context.Context, req UserRequest) (UserResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, c.UserPath, req)
	if err != nil {
		return UserResponse{}, err
	}
	c.captureCookies(resp)

	var out UserResponse
	if err := decodeJSON(resp, &out); err != nil {
		return UserResponse{}, err
	}
	return out, nil
}

// Authed wraps req in UrqAuthedRequest and sends it to the user endpoint.
func (c *SDKClient) Authed(ctx context.Context, req AuthedRequest) (UserResponse, error) {
	return c.User(ctx, UserRequest{What: UrqAuthedRequest, Data: req})
}

// Admin sends a request to the admin endpoint.
func (c *SDKClient) Admin(ctx context.Context, req AdminRequest) (AdminResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, c.AdminPath, req)
	if err != nil {
		return AdminResponse{}, err
	}
	c.captureCookies(resp)

	var out AdminResponse
	if err := decodeJSON(resp, &out); err != nil {
		return AdminResponse{}, err
	}
	return out, nil
}

// PageLoad asks the server who the current session belongs to. The server
// answers UrpLoggedIn with LoginData or UrpNotLoggedIn.
func (c *SDKClient) PageLoad(ctx context.Context) (UserResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, c.SessionPath, nil)
	if err != nil {
		return UserResponse{}, err
	}
	c.captureCookies(resp)

	var out UserResponse
	if err := decodeJSON(resp, &out); err != nil {
		return UserResponse{}, err
	}
	return out, nil
}

// Login logs in as name and returns the login data. Any response other than
// UrpLoggedIn is reported as an *UnexpectedResponseError.
func (c *SDKClient) Login(ctx context.Context, name, password string) (LoginData, error) {
	out, err := c.User(ctx, UserRequest{What: UrqLogin, Data: Login{UID: name, Pwd: password}})
	if err != nil {
		return LoginData{}, err
	}
	if out.What != UrpLoggedIn {
		return LoginData{}, &UnexpectedResponseError{Want: string(UrpLoggedIn), Got: string(out.What)}
	}

	var ld LoginData
	if err := out.DecodeData(&ld); err != nil {
		return LoginData{}, err
	}
	return ld, nil
}

// Logout ends the current session.
func (c *SDKClient) Logout(ctx context.Context) error {
	out, err := c.User(ctx, UserRequest{What: UrqLogout})
	if err != nil {
		return err
	}
	if out.What != UrpLoggedOut {
		return &UnexpectedResponseError{Want: string(UrpLoggedOut), Got: string(out.What)}
	}
	c.SetCookie("")
	return nil
}

// GetLiveness checks whether the server is running.
func (c *SDKClient) GetLiveness(ctx context.Context) (*HealthResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, DefaultLivezPath, nil)
	if err != nil {
		return nil, err
	}

	var out HealthResponse
	if err := decodeJSON(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

package authsdk

import (
	"context"
	"net/http"
	"time"
)

// RemoteLogin is the outcome of logging in to a peer instance.
type RemoteLogin struct {
	// Response is the peer's reply. Only UrpLoggedIn means success.
	Response UserResponse

	// Cookie is the session cookie the peer handed out, as "name=value".
	Cookie string
}

// RemotePeer logs in to other orgauth instances on behalf of federated
// users. A zero RemotePeer uses a 10 second timeout and DefaultUserPath.
type RemotePeer struct {
	HTTPClient *http.Client
	UserPath   string
}

// Login posts UrqLogin to the user endpoint below remoteURL. Transport and
// decoding failures are returned as errors; a rejection by the peer is a
// successful call whose Response is not UrpLoggedIn.
func (p RemotePeer) Login(ctx context.Context, remoteURL, name, password string) (RemoteLogin, error) {
	c := NewSDKClient(remoteURL)
	if p.HTTPClient != nil {
		c.HTTPClient = p.HTTPClient
	} else {
		c.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if p.UserPath != "" {
		c.UserPath = p.UserPath
	}

	out, err := c.User(ctx, UserRequest{What: UrqLogin, Data: Login{UID: name, Pwd: password}})
	if err != nil {
		return RemoteLogin{}, err
	}
	return RemoteLogin{Response: out, Cookie: c.Cookie()}, nil
}

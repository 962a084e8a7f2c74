/*
Package authsdk provides the wire protocol and a client SDK for orgauth servers.

# Protocol

Every message is a tagged union encoded as a JSON object with a "what" field
naming the variant and an optional "data" field carrying its payload:

	{"what": "UrqLogin", "data": {"uid": "alice", "pwd": "secret"}}
	{"what": "UrpLoggedIn", "data": {"userid": 1, "name": "alice", ...}}
	{"what": "UrpLoggedOut"}

User requests (Urq*) go to the user endpoint and are answered with user
responses (Urp*). Requests that need a session are wrapped in UrqAuthedRequest
whose payload is itself an AuthedRequest (Aur*). Admin requests (Adr*) go to
the admin endpoint and are answered with admin responses (Arp*).

Domain failures such as a wrong password are ordinary responses with status
200. Only transport problems produce a non-2xx status, which the client
reports as an *HTTPError.

# Client

	client := authsdk.NewSDKClient("https://auth.example.com")

	ld, err := client.Login(ctx, "alice", "secret")
	if err != nil {
		return err
	}

	resp, err := client.Authed(ctx, authsdk.AuthedRequest{
		What: authsdk.AurChangeEmail,
		Data: authsdk.ChangeEmail{Pwd: "secret", Email: "alice@example.com"},
	})

The client keeps the session cookie from the last response that set one, so
a single SDKClient represents a single logged in user.

Payloads are decoded with DecodeData:

	var users []authsdk.LoginData
	if err := resp.DecodeData(&users); err != nil {
		return err
	}

# Federation

RemotePeer logs in to another orgauth instance and captures its session
cookie. Servers use it to register and re-home accounts whose credentials
live on a peer.
*/
package authsdk

package authsdk

import (
	"encoding/json"

	"github.com/google/uuid"
)

// ============================================================================
// Envelopes
// ============================================================================

// Every message on the wire is a tagged union of the form
//
//	{"what": "UrqLogin", "data": {...}}
//
// where "data" is omitted for variants that carry no payload. Data holds the
// typed payload on the sending side. After JSON decoding it holds the raw
// json.RawMessage, which DecodeData unpacks into a concrete type.

// UserRequestKind names a variant of UserRequest.
type UserRequestKind string

const (
	UrqRegister      UserRequestKind = "UrqRegister"
	UrqLogin         UserRequestKind = "UrqLogin"
	UrqLogout        UserRequestKind = "UrqLogout"
	UrqResetPassword UserRequestKind = "UrqResetPassword"
	UrqSetPassword   UserRequestKind = "UrqSetPassword"
	UrqReadInvite    UserRequestKind = "UrqReadInvite"
	UrqRSVP          UserRequestKind = "UrqRSVP"
	UrqAuthedRequest UserRequestKind = "UrqAuthedRequest"
)

// AuthedRequestKind names a variant of AuthedRequest. These are only
// accepted inside UrqAuthedRequest and require a valid session.
type AuthedRequestKind string

const (
	AurChangePassword  AuthedRequestKind = "AurChangePassword"
	AurChangeEmail     AuthedRequestKind = "AurChangeEmail"
	AurChangeRemoteURL AuthedRequestKind = "AurChangeRemoteUrl"
	AurReadRemoteUser  AuthedRequestKind = "AurReadRemoteUser"
	AurGetInvite       AuthedRequestKind = "AurGetInvite"
)

// UserResponseKind names a variant of UserResponse.
type UserResponseKind string

const (
	UrpRegistrationSent       UserResponseKind = "UrpRegistrationSent"
	UrpUserExists             UserResponseKind = "UrpUserExists"
	UrpUnregisteredUser       UserResponseKind = "UrpUnregisteredUser"
	UrpInvalidUserOrPwd       UserResponseKind = "UrpInvalidUserOrPwd"
	UrpInvalidUserID          UserResponseKind = "UrpInvalidUserId"
	UrpInvalidUserUUID        UserResponseKind = "UrpInvalidUserUuid"
	UrpBlankUserName          UserResponseKind = "UrpBlankUserName"
	UrpBlankPassword          UserResponseKind = "UrpBlankPassword"
	UrpNotLoggedIn            UserResponseKind = "UrpNotLoggedIn"
	UrpAccountDeactivated     UserResponseKind = "UrpAccountDeactivated"
	UrpLoggedIn               UserResponseKind = "UrpLoggedIn"
	UrpLoggedOut              UserResponseKind = "UrpLoggedOut"
	UrpChangedPassword        UserResponseKind = "UrpChangedPassword"
	UrpChangedEmail           UserResponseKind = "UrpChangedEmail"
	UrpChangedRemoteURL       UserResponseKind = "UrpChangedRemoteUrl"
	UrpResetPasswordAck       UserResponseKind = "UrpResetPasswordAck"
	UrpSetPasswordAck         UserResponseKind = "UrpSetPasswordAck"
	UrpInvite                 UserResponseKind = "UrpInvite"
	UrpRemoteRegistrationFail UserResponseKind = "UrpRemoteRegistrationFailed"
	UrpRemoteUser             UserResponseKind = "UrpRemoteUser"
	UrpNoData                 UserResponseKind = "UrpNoData"
	UrpNotFound               UserResponseKind = "UrpNotFound"
	UrpRegistrationClosed     UserResponseKind = "UrpRegistrationClosed"
	UrpInvitesDisabled        UserResponseKind = "UrpInvitesDisabled"
	UrpServerError            UserResponseKind = "UrpServerError"
)

// AdminRequestKind names a variant of AdminRequest.
type AdminRequestKind string

const (
	AdrGetUsers    AdminRequestKind = "AdrGetUsers"
	AdrDeleteUser  AdminRequestKind = "AdrDeleteUser"
	AdrUpdateUser  AdminRequestKind = "AdrUpdateUser"
	AdrGetInvite   AdminRequestKind = "AdrGetInvite"
	AdrGetPwdReset AdminRequestKind = "AdrGetPwdReset"
)

// AdminResponseKind names a variant of AdminResponse.
type AdminResponseKind string

const (
	ArpUsers          AdminResponseKind = "ArpUsers"
	ArpUserDeleted    AdminResponseKind = "ArpUserDeleted"
	ArpUserNotDeleted AdminResponseKind = "ArpUserNotDeleted"
	ArpUserUpdated    AdminResponseKind = "ArpUserUpdated"
	ArpUserExists     AdminResponseKind = "ArpUserExists"
	ArpUserInvite     AdminResponseKind = "ArpUserInvite"
	ArpPwdReset       AdminResponseKind = "ArpPwdReset"
	ArpNoUserID       AdminResponseKind = "ArpNoUserId"
	ArpNoData         AdminResponseKind = "ArpNoData"
	ArpNotLoggedIn    AdminResponseKind = "ArpNotLoggedIn"
	ArpAccessDenied   AdminResponseKind = "ArpAccessDenied"
	ArpServerError    AdminResponseKind = "ArpServerError"
)

// UserRequest is the top-level message accepted by the user endpoint.
type UserRequest struct {
	What UserRequestKind `json:"what"`
	Data any             `json:"data,omitempty"`
}

// DecodeData unpacks the payload into v.
func (r UserRequest) DecodeData(v any) error { return decodeData(r.Data, v) }

func (r *UserRequest) UnmarshalJSON(b []byte) error {
	var env struct {
		What UserRequestKind `json:"what"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	r.What, r.Data = env.What, rawOrNil(env.Data)
	return nil
}

// AuthedRequest is the payload of UrqAuthedRequest.
type AuthedRequest struct {
	What AuthedRequestKind `json:"what"`
	Data any               `json:"data,omitempty"`
}

func (r AuthedRequest) DecodeData(v any) error { return decodeData(r.Data, v) }

func (r *AuthedRequest) UnmarshalJSON(b []byte) error {
	var env struct {
		What AuthedRequestKind `json:"what"`
		Data json.RawMessage   `json:"data"`
	}
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	r.What, r.Data = env.What, rawOrNil(env.Data)
	return nil
}

// UserResponse is the reply to a UserRequest.
type UserResponse struct {
	What UserResponseKind `json:"what"`
	Data any              `json:"data,omitempty"`
}

func (r UserResponse) DecodeData(v any) error { return decodeData(r.Data, v) }

func (r *UserResponse) UnmarshalJSON(b []byte) error {
	var env struct {
		What UserResponseKind `json:"what"`
		Data json.RawMessage  `json:"data"`
	}
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	r.What, r.Data = env.What, rawOrNil(env.Data)
	return nil
}

// AdminRequest is the top-level message accepted by the admin endpoint.
type AdminRequest struct {
	What AdminRequestKind `json:"what"`
	Data any              `json:"data,omitempty"`
}

func (r AdminRequest) DecodeData(v any) error { return decodeData(r.Data, v) }

func (r *AdminRequest) UnmarshalJSON(b []byte) error {
	var env struct {
		What AdminRequestKind `json:"what"`
		Data json.RawMessage  `json:"data"`
	}
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	r.What, r.Data = env.What, rawOrNil(env.Data)
	return nil
}

// AdminResponse is the reply to an AdminRequest.
type AdminResponse struct {
	What AdminResponseKind `json:"what"`
	Data any               `json:"data,omitempty"`
}

func (r AdminResponse) DecodeData(v any) error { return decodeData(r.Data, v) }

func (r *AdminResponse) UnmarshalJSON(b []byte) error {
	var env struct {
		What AdminResponseKind `json:"what"`
		Data json.RawMessage   `json:"data"`
	}
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	r.What, r.Data = env.What, rawOrNil(env.Data)
	return nil
}

func rawOrNil(b json.RawMessage) any {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	return b
}

func decodeData(data any, v any) error {
	if data == nil {
		return ErrMissingData
	}
	raw, ok := data.(json.RawMessage)
	if !ok {
		b, err := json.Marshal(data)
		if err != nil {
			return err
		}
		raw = b
	}
	return json.Unmarshal(raw, v)
}

// ============================================================================
// User request payloads
// ============================================================================

// RegistrationData is the payload of UrqRegister. RemoteURL is set when the
// account is federated with another instance.
type RegistrationData struct {
	UID       string  `json:"uid"`
	Pwd       string  `json:"pwd"`
	Email     string  `json:"email"`
	RemoteURL *string `json:"remote_url,omitempty"`
}

type Login struct {
	UID string `json:"uid"`
	Pwd string `json:"pwd"`
}

type ResetPassword struct {
	UID string `json:"uid"`
}

type SetPassword struct {
	UID      string    `json:"uid"`
	NewPwd   string    `json:"newpwd"`
	ResetKey uuid.UUID `json:"reset_key"`
}

// RSVP accepts an invite. When UID names an existing user the invite is
// bound to that account and Email is ignored.
type RSVP struct {
	UID    string    `json:"uid"`
	Pwd    string    `json:"pwd"`
	Email  string    `json:"email"`
	Invite uuid.UUID `json:"invite"`
}

// ============================================================================
// Authed request payloads
// ============================================================================

type ChangePassword struct {
	OldPwd string `json:"oldpwd"`
	NewPwd string `json:"newpwd"`
}

type ChangeEmail struct {
	Pwd   string `json:"pwd"`
	Email string `json:"email"`
}

type ChangeRemoteURL struct {
	Pwd       string  `json:"pwd"`
	RemoteURL *string `json:"remote_url,omitempty"`
}

// GetInvite is the payload of AurGetInvite and AdrGetInvite. Data is opaque
// to the engine and handed back to the host when the invite is accepted.
type GetInvite struct {
	Email *string         `json:"email,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ============================================================================
// Response payloads
// ============================================================================

// LoginData describes the logged in user. Data carries whatever the host's
// login data hook attached.
type LoginData struct {
	UserID    int64           `json:"userid"`
	UUID      uuid.UUID       `json:"uuid"`
	Name      string          `json:"name"`
	Email     string          `json:"email"`
	Admin     bool            `json:"admin"`
	Active    bool            `json:"active"`
	RemoteURL *string         `json:"remote_url,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type UserInvite struct {
	Email   *string         `json:"email,omitempty"`
	Token   uuid.UUID       `json:"token"`
	URL     string          `json:"url"`
	Data    json.RawMessage `json:"data,omitempty"`
	Creator int64           `json:"creator"`
}

// PhantomUser is the reduced view of another user returned by
// AurReadRemoteUser.
type PhantomUser struct {
	ID     int64           `json:"id"`
	UUID   uuid.UUID       `json:"uuid"`
	Name   string          `json:"name"`
	Active bool            `json:"active"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type PwdReset struct {
	UserID int64  `json:"userid"`
	URL    string `json:"url"`
}

// ServerError is the payload of UrpServerError and ArpServerError.
type ServerError struct {
	Message string `json:"message"`
}

// ConfirmResponse answers the registration and email confirmation links.
// MainSite is where the user should continue.
type ConfirmResponse struct {
	Status   string `json:"status"`
	MainSite string `json:"mainsite,omitempty"`
}

// ============================================================================
// Health
// ============================================================================

type HealthResponse struct {
	Status  string            `json:"status"`
	Uptime  string            `json:"uptime"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

package provider

// Table is the full provider catalog. The registry instantiates one Engine
// per row; which rows are live is decided by the config snapshot at runtime.
var Table = []Descriptor{
	{
		Name:               "google",
		AuthURL:            "https://accounts.google.com/o/oauth2/v2/auth",
		TokenURL:           "https://oauth2.googleapis.com/token",
		ProfileURL:         "https://www.googleapis.com/oauth2/v3/userinfo",
		DefaultScopes:      []string{"openid", "email", "profile"},
		TokenMethod:        TokenPOST,
		ProfileAuth:        ProfileBearer,
		AcceptsClientToken: true, // mobile SDKs hand the app an ID/access token directly
		Normalize: func(raw map[string]any) (string, string, string, bool) {
			return str(raw, "sub"), str(raw, "email"), str(raw, "name"), boolean(raw, "email_verified")
		},
	},
	{
		Name:               "facebook",
		AuthURL:            "https://www.facebook.com/v19.0/dialog/oauth",
		TokenURL:           "https://graph.facebook.com/v19.0/oauth/access_token",
		ProfileURL:         "https://graph.facebook.com/me?fields=id,name,email",
		DefaultScopes:      []string{"email", "public_profile"},
		ScopeSeparator:     ",",
		TokenMethod:        TokenGET,
		ProfileAuth:        ProfileQuery,
		AcceptsClientToken: true,
		Normalize: func(raw map[string]any) (string, string, string, bool) {
			email := str(raw, "email")
			// Facebook only returns addresses it has verified.
			return str(raw, "id"), email, str(raw, "name"), email != ""
		},
	},
	{
		Name:          "github",
		AuthURL:       "https://github.com/login/oauth/authorize",
		TokenURL:      "https://github.com/login/oauth/access_token",
		ProfileURL:    "https://api.github.com/user",
		EmailURL:      "https://api.github.com/user/emails",
		DefaultScopes: []string{"read:user", "user:email"},
		TokenMethod:   TokenPOST,
		ProfileAuth:   ProfileBearer,
		Normalize: func(raw map[string]any) (string, string, string, bool) {
			name := str(raw, "name")
			if name == "" {
				name = str(raw, "login")
			}
			return str(raw, "id"), str(raw, "email"), name, true
		},
	},
	{
		Name:          "microsoft",
		AuthURL:       "https://login.microsoftonline.com/common/oauth2/v2.0/authorize",
		TokenURL:      "https://login.microsoftonline.com/common/oauth2/v2.0/token",
		ProfileURL:    "https://graph.microsoft.com/oidc/userinfo",
		DefaultScopes: []string{"openid", "email", "profile"},
		TokenMethod:   TokenPOST,
		ProfileAuth:   ProfileBearer,
		Normalize: func(raw map[string]any) (string, string, string, bool) {
			return str(raw, "sub"), str(raw, "email"), str(raw, "name"), true
		},
	},
	{
		Name:          "slack",
		AuthURL:       "https://slack.com/openid/connect/authorize",
		TokenURL:      "https://slack.com/api/openid.connect.token",
		ProfileURL:    "https://slack.com/api/openid.connect.userInfo",
		DefaultScopes: []string{"openid", "email", "profile"},
		TokenMethod:   TokenPOST,
		ProfileAuth:   ProfileBearer,
		Normalize: func(raw map[string]any) (string, string, string, bool) {
			return str(raw, "sub"), str(raw, "email"), str(raw, "name"), boolean(raw, "email_verified")
		},
	},
	{
		Name:          "figma",
		AuthURL:       "https://www.figma.com/oauth",
		TokenURL:      "https://www.figma.com/api/oauth/token",
		ProfileURL:    "https://api.figma.com/v1/me",
		DefaultScopes: []string{"files:read"},
		TokenMethod:   TokenPOST,
		ProfileAuth:   ProfileBearer,
		Normalize: func(raw map[string]any) (string, string, string, bool) {
			return str(raw, "id"), str(raw, "email"), str(raw, "handle"), true
		},
	},
	{
		Name:                  "twitch",
		AuthURL:               "https://id.twitch.tv/oauth2/authorize",
		TokenURL:              "https://id.twitch.tv/oauth2/token",
		ProfileURL:            "https://api.twitch.tv/helix/users",
		DefaultScopes:         []string{"user:read:email"},
		TokenMethod:           TokenPOST,
		ProfileAuth:           ProfileBearer,
		ProfileClientIDHeader: "Client-Id",
		Normalize: func(raw map[string]any) (string, string, string, bool) {
			// Helix wraps the user in a data array.
			items, _ := raw["data"].([]any)
			if len(items) == 0 {
				return "", "", "", false
			}
			u, _ := items[0].(map[string]any)
			return str(u, "id"), str(u, "email"), str(u, "display_name"), true
		},
	},
	{
		Name:               "kakao",
		AuthURL:            "https://kauth.kakao.com/oauth/authorize",
		TokenURL:           "https://kauth.kakao.com/oauth/token",
		ProfileURL:         "https://kapi.kakao.com/v2/user/me",
		DefaultScopes:      []string{"account_email", "profile_nickname"},
		TokenMethod:        TokenPOST,
		ProfileAuth:        ProfileBearer,
		AcceptsClientToken: true,
		Normalize: func(raw map[string]any) (string, string, string, bool) {
			account, _ := raw["kakao_account"].(map[string]any)
			profile, _ := account["profile"].(map[string]any)
			return str(raw, "id"), str(account, "email"), str(profile, "nickname"),
				boolean(account, "is_email_verified")
		},
	},
}

// Lookup finds a descriptor by name.
func Lookup(name string) (Descriptor, bool) {
	for _, d := range Table {
		if d.Name == name {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Names lists every provider in the catalog.
func Names() []string {
	out := make([]string, 0, len(Table))
	for _, d := range Table {
		out = append(out, d.Name)
	}
	return out
}

package fixengine

import (
	"strconv"
	"strings"

	appconfig "github.com/Aidin1998/fixgate/internal/config"
	"github.com/Aidin1998/fixgate/internal/session"
	"github.com/Aidin1998/fixgate/pkg/errors"
	"github.com/quickfixgo/quickfix"
	"github.com/quickfixgo/quickfix/config"
)

// Engine settings accepted under a session's extra map. Configuration keys
// arrive lower-cased, so they are mapped back to the engine's spelling.
var extraSettings = canonical(
	config.ResetOnLogon,
	config.ResetOnLogout,
	config.ResetOnDisconnect,
	config.ReconnectInterval,
	config.StartTime,
	config.EndTime,
	config.TimeZone,
	config.DataDictionary,
	"UseDataDictionary", // not defined in quickfixgo v0.9.6 config
	config.ValidateFieldsOutOfOrder,
	config.SocketUseSSL,
	config.FileLogPath,
	config.FileStorePath,
)

func canonical(names ...string) map[string]string {
	out := make(map[string]string, len(names))
	for _, n := range names {
		out[strings.ToLower(n)] = n
	}
	return out
}

// BuildSettings converts the session configuration into engine settings.
// The role flags are stored as session settings so that they can be read
// back through Roles.
func BuildSettings(cfg appconfig.FIXConfig) (*quickfix.Settings, error) {
	settings := quickfix.NewSettings()
	for i, s := range cfg.Sessions {
		ss := quickfix.NewSessionSettings()
		ss.Set(config.BeginString, s.BeginString)
		ss.Set(config.SenderCompID, s.SenderCompID)
		ss.Set(config.TargetCompID, s.TargetCompID)
		ss.Set(config.SocketConnectHost, s.Host)
		ss.Set(config.SocketConnectPort, strconv.Itoa(s.Port))
		ss.Set(config.HeartBtInt, strconv.Itoa(s.HeartBtInt))
		ss.Set(session.SettingMarketDataSession, yn(s.MarketData))
		ss.Set(session.SettingOrderSession, yn(s.Order))
		for k, v := range s.Extra {
			name, ok := extraSettings[strings.ToLower(k)]
			if !ok {
				name = k
			}
			ss.Set(name, v)
		}
		if _, err := settings.AddSession(ss); err != nil {
			return nil, errors.Invalid.Explain("session %d (%s->%s)", i, s.SenderCompID, s.TargetCompID).Wrap(err)
		}
	}
	return settings, nil
}

func yn(b bool) string {
	if b {
		return "Y"
	}
	return "N"
}

// Roles reads the role flags of each session from the engine settings.
// It implements session.SettingsSource.
type Roles struct {
	sessions map[session.ID]*quickfix.SessionSettings
}

var _ session.SettingsSource = Roles{}

// NewRoles indexes settings by session id.
func NewRoles(settings *quickfix.Settings) Roles {
	r := Roles{sessions: make(map[session.ID]*quickfix.SessionSettings)}
	for sid, ss := range settings.SessionSettings() {
		r.sessions[sessionID(sid)] = ss
	}
	return r
}

// BoolSetting implements session.SettingsSource. Unknown sessions, missing
// keys and malformed values all report ok == false.
func (r Roles) BoolSetting(id session.ID, key string) (bool, bool) {
	ss, ok := r.sessions[id]
	if !ok || !ss.HasSetting(key) {
		return false, false
	}
	v, err := ss.BoolSetting(key)
	if err != nil {
		return false, false
	}
	return v, true
}

func sessionID(sid quickfix.SessionID) session.ID {
	return session.ID(sid.String())
}

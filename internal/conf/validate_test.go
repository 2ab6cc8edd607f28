package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validSettings() *Settings {
	s := &Settings{}
	s.Server.Host = "127.0.0.1"
	s.Server.Port = 8050
	s.Discovery.MaxEntries = 50000
	s.Discovery.CacheTTLSec = 60
	return s
}

func TestValidateSettings(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			mutate:  func(s *Settings) {},
			wantErr: false,
		},
		{
			name:    "port zero",
			mutate:  func(s *Settings) { s.Server.Port = 0 },
			wantErr: true,
		},
		{
			name:    "port too large",
			mutate:  func(s *Settings) { s.Server.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "negative max entries",
			mutate:  func(s *Settings) { s.Discovery.MaxEntries = -1 },
			wantErr: true,
		},
		{
			name:    "file logging without path",
			mutate:  func(s *Settings) { s.Main.Log.Enabled = true; s.Main.Log.Path = "" },
			wantErr: true,
		},
		{
			name:    "unlimited scan allowed",
			mutate:  func(s *Settings) { s.Discovery.MaxEntries = 0 },
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(s)
			err := ValidateSettings(s)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

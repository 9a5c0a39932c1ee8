package config

import (
	"testing"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/stretchr/testify/assert"
)

func embedded(v string) commoncfg.SourceRef {
	return commoncfg.SourceRef{Source: "embedded", Value: v}
}

func TestMakeConnStr(t *testing.T) {
	invalid := commoncfg.SourceRef{Source: "invalid-source", Value: "x"}

	tests := []struct {
		name        string
		conf        Database
		wantConnStr string
		assertErr   assert.ErrorAssertionFunc
	}{
		{
			name: "Make connection string",
			conf: Database{
				Host:     embedded("my_host"),
				User:     embedded("my_user"),
				Password: embedded("my_password"),
				Name:     "my_db_name",
				Port:     "5432",
			},
			wantConnStr: "host=my_host user=my_user password=my_password dbname=my_db_name port=5432",
			assertErr:   assert.NoError,
		},
		{
			name: "Make connection string with ssl mode",
			conf: Database{
				Host:     embedded("my_host"),
				User:     embedded("my_user"),
				Password: embedded("my_password"),
				Name:     "my_db_name",
				Port:     "5432",
				SSLMode:  "disable",
			},
			wantConnStr: "host=my_host user=my_user password=my_password dbname=my_db_name port=5432 sslmode=disable",
			assertErr:   assert.NoError,
		},
		{
			name:      "Error - invalid host source",
			conf:      Database{Host: invalid, User: embedded("u"), Password: embedded("p")},
			assertErr: assert.Error,
		},
		{
			name:      "Error - invalid user source",
			conf:      Database{Host: embedded("h"), User: invalid, Password: embedded("p")},
			assertErr: assert.Error,
		},
		{
			name:      "Error - invalid password source",
			conf:      Database{Host: embedded("h"), User: embedded("u"), Password: invalid},
			assertErr: assert.Error,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			connStr, err := MakeConnStr(tt.conf)
			if !tt.assertErr(t, err) || err != nil {
				return
			}

			assert.Equal(t, tt.wantConnStr, connStr)
		})
	}
}

func TestDatabase_Configured(t *testing.T) {
	assert.False(t, Database{}.Configured())
	assert.False(t, Database{Name: "db"}.Configured())
	assert.True(t, Database{Name: "db", Host: embedded("localhost")}.Configured())
}

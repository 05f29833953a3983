package conn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionDSN(t *testing.T) {
	testCases := []struct {
		desc string
		opt  Option
		want string
	}{
		{
			desc: "defaults",
			opt:  Option{},
			want: "postgres://localhost:5432?sslmode=disable",
		},
		{
			desc: "full",
			opt: Option{
				Host:     "db",
				Port:     6543,
				User:     "monitor",
				Password: "secret",
				Database: "positions",
				SSLMode:  "require",
				Params:   map[string]string{"application_name": "positionmonitor", "": "ignored"},
			},
			want: "postgres://monitor:secret@db:6543/positions?application_name=positionmonitor&sslmode=require",
		},
		{
			desc: "conn string wins",
			opt:  Option{Host: "db", ConnString: "postgres://other/x"},
			want: "postgres://other/x",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			dsn, err := tc.opt.dsn()
			require.NoError(t, err)
			assert.Equal(t, tc.want, dsn)
		})
	}
}

func TestOrDefault(t *testing.T) {
	assert.Equal(t, 10, orDefault(0, 10))
	assert.Equal(t, 3, orDefault(3, 10))
}

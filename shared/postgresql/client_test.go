package postgresql

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfig_DSN(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   string
	}{
		{
			name: "defaults sslmode to disable",
			config: Config{
				Host: "localhost", Port: 5432, User: "bots", Password: "secret", Database: "bots_db",
			},
			want: "host=localhost port=5432 user=bots password=secret dbname=bots_db sslmode=disable",
		},
		{
			name: "with connect timeout",
			config: Config{
				Host: "db", Port: 6543, User: "u", Password: "p", Database: "d",
				SSLMode: "require", ConnectTimeout: 7 * time.Second,
			},
			want: "host=db port=6543 user=u password=p dbname=d sslmode=require connect_timeout=7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.config.DSN())
		})
	}
}
